package config

const (
	defaultDataDir = "~/.local/share/casework"
	defaultLogDir  = "~/.local/share/casework/logs"
	defaultAPIBind = "127.0.0.1:7321"

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultSignalPollInterval = 5
	defaultErrorRetryInterval = 10
	defaultReconcileInterval  = 60
	defaultHookRefreshSeconds = 30

	defaultWorkerCount        = 4
	defaultBatchSize          = 10
	defaultLeaseSeconds       = 60
	defaultSendTimeoutSeconds = 10
	defaultRetryBaseSeconds   = 30
	defaultRetryMaxSeconds    = 1800
	defaultMaxRetries         = 3
	defaultReclaimInterval    = 30

	defaultQuoteReadyThreshold  = 80
	defaultMinInfoRatioForScope = 0.5
	defaultRecentContactDays    = 7
	defaultStaleContactDays     = 30

	defaultProviderRequestTimeout = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Workflow: Workflow{
			SignalPollInterval: defaultSignalPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ReconcileInterval:  defaultReconcileInterval,
			HookRefreshSeconds: defaultHookRefreshSeconds,
		},
		Delivery: Delivery{
			WorkerCount:        defaultWorkerCount,
			BatchSize:          defaultBatchSize,
			LeaseSeconds:       defaultLeaseSeconds,
			SendTimeoutSeconds: defaultSendTimeoutSeconds,
			RetryBaseSeconds:   defaultRetryBaseSeconds,
			RetryMaxSeconds:    defaultRetryMaxSeconds,
			DefaultMaxRetries:  defaultMaxRetries,
			ReclaimInterval:    defaultReclaimInterval,
		},
		Readiness: Readiness{
			QuoteReadyThreshold:  defaultQuoteReadyThreshold,
			MinInfoRatioForScope: defaultMinInfoRatioForScope,
			RecentContactDays:    defaultRecentContactDays,
			StaleContactDays:     defaultStaleContactDays,
		},
		Provider: Provider{
			RequestTimeout: defaultProviderRequestTimeout,
		},
		Directory: Directory{
			Roles: map[string][]string{},
		},
	}
}
