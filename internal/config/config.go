// ABOUTME: Configuration loading and parsing for ws-manager
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHeartbeatTimeout is the staleness cutoff used by heartbeat sweeps
// when no timeout is configured or supplied.
const DefaultHeartbeatTimeout = 30 * time.Second

// Config represents the complete ws-manager configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds database configuration. Path is the single external
// parameter the ledger requires.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HeartbeatConfig holds heartbeat sweep configuration
type HeartbeatConfig struct {
	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists.
// The database lives under the XDG data directory.
func Default() *Config {
	return &Config{
		Database:  DatabaseConfig{Path: DefaultDatabasePath()},
		Heartbeat: HeartbeatConfig{Timeout: DefaultHeartbeatTimeout},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// DefaultDatabasePath returns the documented default store location.
// Priority: XDG_DATA_HOME/ws-manager > ~/.local/share/ws-manager.
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("data", "ws-manager.db") // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "ws-manager", "ws-manager.db")
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and unset fields
// fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. If the environment variable is not set, it is
// replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in every unset field with its default value.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath()
	}
	if c.Heartbeat.Timeout == 0 {
		c.Heartbeat.Timeout = DefaultHeartbeatTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are coherent.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Heartbeat.Timeout < 0 {
		return fmt.Errorf("heartbeat.timeout must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Heartbeat.TimeoutRaw != "" {
		timeout, err := time.ParseDuration(cfg.Heartbeat.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat timeout %q: %w", cfg.Heartbeat.TimeoutRaw, err)
		}
		cfg.Heartbeat.Timeout = timeout
	}
	return nil
}
