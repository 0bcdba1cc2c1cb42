// Package agent wires the breakpoint gate, hit manager and console transport
// into a process-wide agent.
package agent

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aivorynet/breakmark/pkg/breakpoint"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the env var holding an optional YAML config file path.
const ConfigFileEnv = "BREAKMARK_CONFIG"

// Config holds the agent configuration.
type Config struct {
	ConsoleURL       string        `yaml:"console_url"`
	Enabled          bool          `yaml:"enabled"`
	Debug            bool          `yaml:"debug"`
	LogLevel         string        `yaml:"log_level"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxHitsPerSecond int           `yaml:"max_hits_per_second"`
	MaxCaptureDepth  int           `yaml:"max_capture_depth"`

	SessionID string `yaml:"-"`
	Hostname  string `yaml:"-"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		LogLevel:         "info",
		PollInterval:     breakpoint.DefaultPollInterval,
		MaxHitsPerSecond: breakpoint.DefaultMaxHitsPerSecond,
		MaxCaptureDepth:  3,
	}
}

// NewConfig creates a configuration from the defaults, the YAML file named by
// BREAKMARK_CONFIG, BREAKMARK_* env vars and options, in that order.
func NewConfig(options ...ConfigOption) *Config {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			Log.WithError(err).Warnf("ignoring config file %s", path)
		}
	}

	cfg.ConsoleURL = getEnvOrDefault("BREAKMARK_CONSOLE_URL", cfg.ConsoleURL)
	cfg.Enabled = getEnvBoolOrDefault("BREAKMARK_ENABLED", cfg.Enabled)
	cfg.Debug = getEnvBoolOrDefault("BREAKMARK_DEBUG", cfg.Debug)
	cfg.LogLevel = getEnvOrDefault("BREAKMARK_LOG_LEVEL", cfg.LogLevel)
	cfg.PollInterval = getEnvDurationOrDefault("BREAKMARK_POLL_INTERVAL", cfg.PollInterval)
	cfg.MaxHitsPerSecond = getEnvIntOrDefault("BREAKMARK_MAX_HITS_PER_SECOND", cfg.MaxHitsPerSecond)
	cfg.MaxCaptureDepth = getEnvIntOrDefault("BREAKMARK_MAX_DEPTH", cfg.MaxCaptureDepth)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	cfg.Hostname = hostname
	cfg.SessionID = uuid.New().String()

	for _, opt := range options {
		opt(cfg)
	}

	return cfg
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file
// keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithConsoleURL sets the debugger console WebSocket URL.
func WithConsoleURL(url string) ConfigOption {
	return func(c *Config) {
		c.ConsoleURL = url
	}
}

// WithEnabled enables or disables the breakpoint gate at start.
func WithEnabled(enabled bool) ConfigOption {
	return func(c *Config) {
		c.Enabled = enabled
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) ConfigOption {
	return func(c *Config) {
		c.Debug = debug
	}
}

// WithLogLevel sets the logrus level name.
func WithLogLevel(level string) ConfigOption {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// WithPollInterval sets how often a waiting breakpoint re-checks the console.
func WithPollInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.PollInterval = d
	}
}

// WithMaxHitsPerSecond caps the number of hit events sent per second.
func WithMaxHitsPerSecond(n int) ConfigOption {
	return func(c *Config) {
		c.MaxHitsPerSecond = n
	}
}

// WithMaxCaptureDepth bounds how deep captured script values are walked.
func WithMaxCaptureDepth(n int) ConfigOption {
	return func(c *Config) {
		c.MaxCaptureDepth = n
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) ConfigOption {
	return func(c *Config) {
		c.SessionID = id
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
