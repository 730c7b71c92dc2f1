// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

heartbeat:
  timeout: "90s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("database path mismatch: got %q", cfg.Database.Path)
	}
	if cfg.Heartbeat.Timeout != 90*time.Second {
		t.Errorf("heartbeat timeout mismatch: got %v", cfg.Heartbeat.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level mismatch: got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("logging format mismatch: got %q", cfg.Logging.Format)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Heartbeat.Timeout != DefaultHeartbeatTimeout {
		t.Errorf("expected default heartbeat timeout, got %v", cfg.Heartbeat.Timeout)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default logging level, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default logging format, got %q", cfg.Logging.Format)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("WS_MANAGER_TEST_DB", "/tmp/expanded.db")

	configPath := writeConfig(t, `
database:
  path: "${WS_MANAGER_TEST_DB}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.Path != "/tmp/expanded.db" {
		t.Errorf("env var not expanded: got %q", cfg.Database.Path)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

heartbeat:
  timeout: "banana"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "heartbeat timeout") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path == "" {
		t.Error("default database path is empty")
	}
	if cfg.Heartbeat.Timeout != DefaultHeartbeatTimeout {
		t.Errorf("default heartbeat timeout mismatch: got %v", cfg.Heartbeat.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestDefaultDatabasePath_XDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	got := DefaultDatabasePath()
	want := filepath.Join("/custom/data", "ws-manager", "ws-manager.db")
	if got != want {
		t.Errorf("path mismatch: got %q, want %q", got, want)
	}
}
