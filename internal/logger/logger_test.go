package logger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		want slog.Level
	}{
		{name: "debug", arg: "debug", want: slog.LevelDebug},
		{name: "uppercase", arg: "WARN", want: slog.LevelWarn},
		{name: "error", arg: "error", want: slog.LevelError},
		{name: "unknown defaults to info", arg: "chatty", want: slog.LevelInfo},
		{name: "empty defaults to info", arg: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := levelFromString(tt.arg); got != tt.want {
				t.Errorf("levelFromString(%q) = %v, want %v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestNewConsoleOnly(t *testing.T) {
	log, closeFn := New(Options{Level: "debug"})
	log.Debug("console only", "key", "value")
	if err := closeFn(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log, closeFn := New(Options{Level: "info", File: path})

	log.Info("hello", "chat_id", "100")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // test-only file
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if entry["msg"] != "hello" || entry["chat_id"] != "100" {
		t.Errorf("unexpected log entry: %v", entry)
	}

	// Debug records stay below the configured level.
	log2, closeFn2 := New(Options{Level: "warn", File: path})
	if log2.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warn level")
	}
	_ = closeFn2()
}
