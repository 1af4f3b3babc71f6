package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"casework/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
api_bind = "127.0.0.1:0"

[delivery]
worker_count = 2
default_max_retries = 5

[directory]
[directory.roles]
account_executive = [" ae@example.com ", ""]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %s", resolved)
	}
	if cfg.Delivery.WorkerCount != 2 {
		t.Fatalf("expected worker_count override, got %d", cfg.Delivery.WorkerCount)
	}
	if cfg.Delivery.DefaultMaxRetries != 5 {
		t.Fatalf("expected max retries override, got %d", cfg.Delivery.DefaultMaxRetries)
	}
	// Defaults survive for untouched sections.
	if cfg.Readiness.QuoteReadyThreshold != 80 {
		t.Fatalf("expected default quote_ready_threshold, got %d", cfg.Readiness.QuoteReadyThreshold)
	}
	addrs := cfg.Directory.Roles["account_executive"]
	if len(addrs) != 1 || addrs[0] != "ae@example.com" {
		t.Fatalf("expected trimmed directory addresses, got %#v", addrs)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[readiness]
quote_ready_threshold = 140
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for out-of-range threshold")
	}
}

func TestValidateRetryWindowOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Delivery.RetryBaseSeconds = 600
	cfg.Delivery.RetryMaxSeconds = 60
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "retry_max_seconds") {
		t.Fatalf("expected retry window error, got %v", err)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	written, err := config.WriteSample(path, false)
	if err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if written != path {
		t.Fatalf("unexpected written path: %s", written)
	}
	if _, err := config.WriteSample(path, false); err == nil {
		t.Fatal("expected error when overwriting without force")
	}
	if _, err := config.WriteSample(path, true); err != nil {
		t.Fatalf("forced overwrite failed: %v", err)
	}
}
