package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		ConfigFileEnv,
		"BREAKMARK_CONSOLE_URL",
		"BREAKMARK_ENABLED",
		"BREAKMARK_DEBUG",
		"BREAKMARK_LOG_LEVEL",
		"BREAKMARK_POLL_INTERVAL",
		"BREAKMARK_MAX_HITS_PER_SECOND",
		"BREAKMARK_MAX_DEPTH",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg := NewConfig()
	if !cfg.Enabled || cfg.Debug || cfg.ConsoleURL != "" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != time.Second || cfg.MaxHitsPerSecond != 50 || cfg.MaxCaptureDepth != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SessionID == "" || cfg.Hostname == "" {
		t.Errorf("session %q host %q", cfg.SessionID, cfg.Hostname)
	}
	if other := NewConfig(); other.SessionID == cfg.SessionID {
		t.Error("session ids must differ between configs")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("BREAKMARK_CONSOLE_URL", "ws://console:9000/ws")
	t.Setenv("BREAKMARK_ENABLED", "false")
	t.Setenv("BREAKMARK_DEBUG", "true")
	t.Setenv("BREAKMARK_POLL_INTERVAL", "250ms")
	t.Setenv("BREAKMARK_MAX_HITS_PER_SECOND", "7")
	t.Setenv("BREAKMARK_MAX_DEPTH", "not-a-number")

	cfg := NewConfig()
	if cfg.ConsoleURL != "ws://console:9000/ws" || cfg.Enabled || !cfg.Debug {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.MaxHitsPerSecond != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxCaptureDepth != 3 {
		t.Errorf("invalid int should keep the default, got %d", cfg.MaxCaptureDepth)
	}
}

func TestNewConfigPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "breakmark.yaml")
	data := "console_url: ws://from-file/ws\nlog_level: warn\npoll_interval: 2s\nmax_hits_per_second: 9\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("BREAKMARK_LOG_LEVEL", "error")

	cfg := NewConfig(WithMaxHitsPerSecond(11), WithSessionID("fixed"))

	if cfg.ConsoleURL != "ws://from-file/ws" || cfg.PollInterval != 2*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("env should override file, got %q", cfg.LogLevel)
	}
	if cfg.MaxHitsPerSecond != 11 || cfg.SessionID != "fixed" {
		t.Errorf("options should override env and file: %+v", cfg)
	}
	if !cfg.Enabled {
		t.Error("keys missing from the file must keep their default")
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := cfg.LoadFile(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
