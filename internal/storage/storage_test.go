package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"casework/internal/config"
	"casework/internal/storage"
)

func newConfig(t testing.TB) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	return &cfg
}

func TestOpenCreatesSchema(t *testing.T) {
	cfg := newConfig(t)
	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	var count int
	row := db.QueryRowContext(context.Background(),
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name IN ('cases','signal_events','notification_hooks','notification_queue','status_history')")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan table count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 core tables, found %d", count)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := newConfig(t)
	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	db, err = storage.Open(cfg)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer db.Close()
}

func TestMakePlaceholders(t *testing.T) {
	if got := storage.MakePlaceholders(0); got != "" {
		t.Fatalf("expected empty placeholders, got %q", got)
	}
	if got := storage.MakePlaceholders(3); got != "?,?,?" {
		t.Fatalf("unexpected placeholders: %q", got)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	db, err := storage.Open(newConfig(t))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	stored := "2026-03-01T10:00:00.5Z"
	parsed, err := storage.ParseTimestamp(stored)
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}
	if storage.Timestamp(parsed) != stored {
		t.Fatalf("round trip mismatch: %s", storage.Timestamp(parsed))
	}
	if _, err := storage.ParseTimestamp(""); err == nil {
		t.Fatal("expected error for empty timestamp")
	}
}
