// Package config loads and saves rob's YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName names the config directory.
	AppName = "rob"

	BrokerRobinhood = "robinhood"
	BrokerAlpaca    = "alpaca"

	DefaultBroker              = BrokerRobinhood
	DefaultAPIBaseURL          = "https://api.robinhood.com"
	DefaultSessionCachePath    = "rob.session"
	DefaultMaxLoginAttempts    = 3
	DefaultTradeDelay          = time.Second
	DefaultApprovalSettleDelay = 3 * time.Second
	DefaultRetryDelay          = 2 * time.Second
	DefaultLogLevel            = "warn"

	// EnvLogLevel overrides the configured log level.
	EnvLogLevel = "ROB_LOG_LEVEL"
)

// ErrUnknownBroker is returned for a broker name rob has no client for.
var ErrUnknownBroker = errors.New("unknown broker")

// Duration is a time.Duration stored as a Go duration string ("1s", "500ms").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Config holds the CLI configuration.
type Config struct {
	Broker              string   `yaml:"broker"`
	Username            string   `yaml:"username,omitempty"`
	APIBaseURL          string   `yaml:"api_base_url"`
	SessionCachePath    string   `yaml:"session_cache_path"`
	DeviceToken         string   `yaml:"device_token,omitempty"`
	MaxLoginAttempts    int      `yaml:"max_login_attempts"`
	TradeDelay          Duration `yaml:"trade_delay"`
	ApprovalSettleDelay Duration `yaml:"approval_settle_delay"`
	RetryDelay          Duration `yaml:"retry_delay"`
	LogLevel            string   `yaml:"log_level"`
}

// DefaultConfig returns a Config with every field at its default.
func DefaultConfig() *Config {
	return &Config{
		Broker:              DefaultBroker,
		APIBaseURL:          DefaultAPIBaseURL,
		SessionCachePath:    DefaultSessionCachePath,
		MaxLoginAttempts:    DefaultMaxLoginAttempts,
		TradeDelay:          Duration{DefaultTradeDelay},
		ApprovalSettleDelay: Duration{DefaultApprovalSettleDelay},
		RetryDelay:          Duration{DefaultRetryDelay},
		LogLevel:            DefaultLogLevel,
	}
}

// Load reads the config at path. A missing file yields DefaultConfig; fields
// absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks fields that have no safe fallback.
func (c *Config) Validate() error {
	switch c.Broker {
	case BrokerRobinhood, BrokerAlpaca:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBroker, c.Broker)
	}
	if c.MaxLoginAttempts < 1 {
		return fmt.Errorf("max_login_attempts must be at least 1, got %d", c.MaxLoginAttempts)
	}
	return nil
}

// Save writes cfg to path with 0600 permissions, creating parent
// directories with 0700.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigDir returns $XDG_CONFIG_HOME/rob, or ~/.config/rob.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", AppName)
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnvFilePath returns the .env file written by `rob config --env-file`.
func EnvFilePath() string {
	return filepath.Join(ConfigDir(), ".env")
}
