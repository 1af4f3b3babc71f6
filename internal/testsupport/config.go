package testsupport

import (
	"path/filepath"
	"testing"

	"casework/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithRoles sets the directory role mappings on the test config.
func WithRoles(roles map[string][]string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Directory.Roles = roles
	}
}

// WithWorkerCount overrides the delivery worker count on the test config.
func WithWorkerCount(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Delivery.WorkerCount = count
	}
}
