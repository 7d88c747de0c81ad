// ABOUTME: Configuration loading and parsing for slotforge
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
	DriverBadger  = "badger"
	DriverMemory  = "memory"
)

// Provider types
const (
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
	ProviderFake   = "fake"
)

// Config represents the complete slotforge configuration
type Config struct {
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	Providers  ProvidersConfig  `yaml:"providers" toml:"providers"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// StorageConfig selects and sizes the storage medium
type StorageConfig struct {
	Driver     string `yaml:"driver" toml:"driver"`
	Path       string `yaml:"path" toml:"path"`               // database file (sqlite) or directory (badger)
	QuotaBytes int64  `yaml:"quota_bytes" toml:"quota_bytes"` // 0 = unlimited
}

// GenerationConfig holds per-call limits applied to every provider
type GenerationConfig struct {
	CallTimeout time.Duration `yaml:"-" toml:"-"`
	RateLimit   float64       `yaml:"rate_limit" toml:"rate_limit"` // calls per second, 0 = unlimited
	RateBurst   int           `yaml:"rate_burst" toml:"rate_burst"`

	// Raw string value for YAML/TOML unmarshaling
	CallTimeoutRaw string `yaml:"call_timeout" toml:"call_timeout"`
}

// ProvidersConfig holds one provider per kind
type ProvidersConfig struct {
	Song  ProviderConfig `yaml:"song" toml:"song"`
	Image ProviderConfig `yaml:"image" toml:"image"`
	Video ProviderConfig `yaml:"video" toml:"video"`
}

// ProviderConfig configures the capability for one kind
type ProviderConfig struct {
	Type    string `yaml:"type" toml:"type"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
	Model   string `yaml:"model" toml:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics output configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Textfile string `yaml:"textfile" toml:"textfile"` // node exporter textfile path
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Generation.RateLimit > 0 && cfg.Generation.RateBurst == 0 {
		cfg.Generation.RateBurst = 1
	}
	for _, p := range []*ProviderConfig{&cfg.Providers.Song, &cfg.Providers.Image, &cfg.Providers.Video} {
		if p.Type == "" {
			p.Type = ProviderFake
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	drivers := []string{DriverSQLite, DriverSQLite3, DriverBadger, DriverMemory}
	if !slices.Contains(drivers, c.Storage.Driver) {
		return fmt.Errorf("storage.driver must be one of %s, got %q", strings.Join(drivers, ", "), c.Storage.Driver)
	}
	if c.Storage.QuotaBytes < 0 {
		return fmt.Errorf("storage.quota_bytes cannot be negative")
	}

	if c.Generation.CallTimeout < 0 {
		return fmt.Errorf("generation.call_timeout cannot be negative")
	}
	if c.Generation.RateLimit < 0 {
		return fmt.Errorf("generation.rate_limit cannot be negative")
	}
	if c.Generation.RateBurst < 0 {
		return fmt.Errorf("generation.rate_burst cannot be negative")
	}

	providers := []struct {
		name string
		cfg  ProviderConfig
	}{
		{"song", c.Providers.Song},
		{"image", c.Providers.Image},
		{"video", c.Providers.Video},
	}
	for _, p := range providers {
		switch p.cfg.Type {
		case ProviderFake:
		case ProviderHTTP:
			if p.cfg.BaseURL == "" {
				return fmt.Errorf("providers.%s.base_url is required for type http", p.name)
			}
		case ProviderOpenAI:
			if p.name != "image" {
				return fmt.Errorf("providers.%s: type openai only supports images", p.name)
			}
		default:
			return fmt.Errorf("providers.%s.type must be openai, http or fake, got %q", p.name, p.cfg.Type)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return fmt.Errorf("metrics.textfile is required when metrics are enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Generation.CallTimeoutRaw != "" {
		cfg.Generation.CallTimeout, err = time.ParseDuration(cfg.Generation.CallTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing call_timeout %q: %w", cfg.Generation.CallTimeoutRaw, err)
		}
	}

	return nil
}
