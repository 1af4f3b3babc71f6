package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for input, expected := range cases {
		if got := ParseLevel(input); got != expected {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, expected)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleHandlerRendersComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := newConsoleHandler(&buf, slog.LevelInfo)
	logger := slog.New(handler).With(String(FieldComponent, "dispatcher"))

	logger.Info("signal dispatched", String(FieldSignalID, "sig-1"), Int("hooks", 2))

	line := buf.String()
	if !strings.Contains(line, "dispatcher signal dispatched") {
		t.Fatalf("expected component before message, got %q", line)
	}
	if !strings.Contains(line, "signal_id=sig-1") || !strings.Contains(line, "hooks=2") {
		t.Fatalf("expected attrs in output, got %q", line)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	handler := newConsoleHandler(&buf, slog.LevelWarn)
	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "leases reclaimed", 0)
	if err := handler.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(buf.String(), "leases reclaimed") {
		t.Fatalf("expected message in output, got %q", buf.String())
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	logger.Error("should not panic", Error(nil))
}
