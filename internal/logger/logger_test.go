package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

func TestHelpersWriteThroughGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	Log = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer func() { Log = nil }()

	Debug("debug line")
	Info("info line", "node", "node-b")
	Warn("warn line")
	Error("error line")
	With("component", "init").Info("scoped line")

	out := buf.String()
	for _, want := range []string{
		"debug line",
		"info line",
		"node=node-b",
		"warn line",
		"error line",
		"scoped line",
		"component=init",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestHelpersFallBackToDefaultLogger(t *testing.T) {
	Log = nil

	// Must not panic before InitLogger has run.
	Info("startup message")
	With("k", "v").Debug("startup detail")
}
