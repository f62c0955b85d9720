package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(envListenAddr, "")
	t.Setenv(envDBPath, "")
	t.Setenv(envLogLevel, "")
	t.Setenv(envObjectFile, "SOURCE.O")

	cfg := Load()

	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.DBPath != defaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.Host != defaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, defaultHost)
	}
	if cfg.StableSamples != defaultStableSamples {
		t.Errorf("StableSamples = %d, want %d", cfg.StableSamples, defaultStableSamples)
	}
	if cfg.RunBootDelay != defaultRunBootDelay {
		t.Errorf("RunBootDelay = %v, want %v", cfg.RunBootDelay, defaultRunBootDelay)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(envListenAddr, ":9090")
	t.Setenv(envDBPath, "/tmp/test.db")
	t.Setenv(envLogLevel, "debug")

	cfg := Load()

	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
}

func TestLoadWorkflowSettings(t *testing.T) {
	t.Setenv(envWorkDir, "/srv/drivec")
	t.Setenv(envHost, "sim")
	t.Setenv(envPollInterval, "100ms")
	t.Setenv(envStableSamples, "3")
	t.Setenv(envBootDelay, "2s")
	t.Setenv(envRunTimeout, "90s")
	t.Setenv(envObjectFile, "")

	cfg := Load()

	if cfg.WorkDir != "/srv/drivec" {
		t.Errorf("WorkDir = %q, want %q", cfg.WorkDir, "/srv/drivec")
	}
	if cfg.Host != "sim" {
		t.Errorf("Host = %q, want %q", cfg.Host, "sim")
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.StableSamples != 3 {
		t.Errorf("StableSamples = %d, want 3", cfg.StableSamples)
	}
	if cfg.BootDelay != 2*time.Second {
		t.Errorf("BootDelay = %v, want 2s", cfg.BootDelay)
	}
	if cfg.RunTimeout != 90*time.Second {
		t.Errorf("RunTimeout = %v, want 90s", cfg.RunTimeout)
	}
	if cfg.ObjectFile != "" {
		t.Errorf("ObjectFile = %q, want empty", cfg.ObjectFile)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv(envPollInterval, "soon")
	t.Setenv(envMaxWait, "-5s")
	t.Setenv(envStableSamples, "0")

	cfg := Load()

	if cfg.PollInterval != defaultPollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.PollInterval, defaultPollInterval)
	}
	if cfg.MaxWait != defaultMaxWait {
		t.Errorf("MaxWait = %v, want %v", cfg.MaxWait, defaultMaxWait)
	}
	if cfg.StableSamples != defaultStableSamples {
		t.Errorf("StableSamples = %d, want %d", cfg.StableSamples, defaultStableSamples)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		got := parseLogLevel(tt.input)
		if got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerOutputsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	logger.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("logger output is not valid JSON: %v\noutput: %s", err, buf.String())
	}

	for _, key := range []string{"time", "level", "msg"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("JSON output missing expected key %q", key)
		}
	}
	if entry["msg"] != "test message" {
		t.Errorf("msg = %v, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %v, want %q", entry["key"], "value")
	}
}
