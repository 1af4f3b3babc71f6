package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateReadiness(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		return errors.New("paths.api_bind must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.signal_poll_interval": c.Workflow.SignalPollInterval,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.reconcile_interval":   c.Workflow.ReconcileInterval,
		"workflow.hook_refresh_seconds": c.Workflow.HookRefreshSeconds,
	})
}

func (c *Config) validateDelivery() error {
	if err := ensurePositiveMap(map[string]int{
		"delivery.worker_count":         c.Delivery.WorkerCount,
		"delivery.batch_size":           c.Delivery.BatchSize,
		"delivery.lease_seconds":        c.Delivery.LeaseSeconds,
		"delivery.send_timeout_seconds": c.Delivery.SendTimeoutSeconds,
		"delivery.retry_base_seconds":   c.Delivery.RetryBaseSeconds,
		"delivery.retry_max_seconds":    c.Delivery.RetryMaxSeconds,
		"delivery.reclaim_interval":     c.Delivery.ReclaimInterval,
		"provider.request_timeout":      c.Provider.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Delivery.DefaultMaxRetries < 0 {
		return errors.New("delivery.default_max_retries must not be negative")
	}
	if c.Delivery.RetryMaxSeconds < c.Delivery.RetryBaseSeconds {
		return errors.New("delivery.retry_max_seconds must be >= delivery.retry_base_seconds")
	}
	return nil
}

func (c *Config) validateReadiness() error {
	if c.Readiness.QuoteReadyThreshold < 0 || c.Readiness.QuoteReadyThreshold > 100 {
		return errors.New("readiness.quote_ready_threshold must be between 0 and 100")
	}
	if c.Readiness.MinInfoRatioForScope < 0 || c.Readiness.MinInfoRatioForScope > 1 {
		return errors.New("readiness.min_info_ratio_for_scope must be between 0 and 1")
	}
	if err := ensurePositiveMap(map[string]int{
		"readiness.recent_contact_days": c.Readiness.RecentContactDays,
		"readiness.stale_contact_days":  c.Readiness.StaleContactDays,
	}); err != nil {
		return err
	}
	if c.Readiness.StaleContactDays < c.Readiness.RecentContactDays {
		return errors.New("readiness.stale_contact_days must be >= readiness.recent_contact_days")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be greater than zero", name)
		}
	}
	return nil
}
