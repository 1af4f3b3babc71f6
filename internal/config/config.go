package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Workflow contains daemon timing configuration for the dispatch loops.
type Workflow struct {
	SignalPollInterval int `toml:"signal_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	ReconcileInterval  int `toml:"reconcile_interval"`
	HookRefreshSeconds int `toml:"hook_refresh_seconds"`
}

// Delivery contains the worker pool and retry policy configuration.
type Delivery struct {
	WorkerCount        int `toml:"worker_count"`
	BatchSize          int `toml:"batch_size"`
	LeaseSeconds       int `toml:"lease_seconds"`
	SendTimeoutSeconds int `toml:"send_timeout_seconds"`
	RetryBaseSeconds   int `toml:"retry_base_seconds"`
	RetryMaxSeconds    int `toml:"retry_max_seconds"`
	DefaultMaxRetries  int `toml:"default_max_retries"`
	ReclaimInterval    int `toml:"reclaim_interval"`
}

// Readiness contains the readiness score tuning for the case workflow.
type Readiness struct {
	QuoteReadyThreshold  int     `toml:"quote_ready_threshold"`
	MinInfoRatioForScope float64 `toml:"min_info_ratio_for_scope"`
	RecentContactDays    int     `toml:"recent_contact_days"`
	StaleContactDays     int     `toml:"stale_contact_days"`
}

// Provider contains the external channel provider gateway settings.
// When the endpoint is empty, deliveries are handled by a noop provider.
type Provider struct {
	Endpoint       string `toml:"endpoint"`
	AuthToken      string `toml:"auth_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Directory maps role identifiers to notification addresses. The directory
// backs role expansion when no external directory service is wired in.
type Directory struct {
	Roles map[string][]string `toml:"roles"`
}

// Config encapsulates all configuration values for casework.
//
// Configuration sections by subsystem:
//   - Paths: data directory, log directory, and API bind address
//   - Logging: log format and level
//   - Workflow: dispatcher polling and reconciliation intervals
//   - Delivery: worker pool sizing, lease and retry policy
//   - Readiness: case readiness scoring thresholds
//   - Provider: channel provider gateway endpoint
//   - Directory: role-to-address mappings for recipient resolution
type Config struct {
	Paths     Paths     `toml:"paths"`
	Logging   Logging   `toml:"logging"`
	Workflow  Workflow  `toml:"workflow"`
	Delivery  Delivery  `toml:"delivery"`
	Readiness Readiness `toml:"readiness"`
	Provider  Provider  `toml:"provider"`
	Directory Directory `toml:"directory"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/casework/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return value
// is the resolved path and the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("casework.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
// It refuses to overwrite an existing file unless force is set.
func WriteSample(path string, force bool) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(expanded); statErr == nil && !force {
		return "", fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for name, dir := range map[string]string{
		"paths.data_dir": c.Paths.DataDir,
		"paths.log_dir":  c.Paths.LogDir,
	} {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("%s must be set", name)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
