// Package config provides configuration management for the stock analyst.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"stock-analyst/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Provider    ProviderConfig `mapstructure:"provider"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Planner     PlannerConfig  `mapstructure:"planner"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Metrics     MetricsConfig  `mapstructure:"metrics"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
	Watch       WatchConfig    `mapstructure:"watch"`
	UI          UIConfig       `mapstructure:"ui"`
	Credentials Credentials    `mapstructure:"-" json:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
	// Created lists template files written because they were missing.
	Created []string `mapstructure:"-"`
}

// ProviderConfig selects and tunes the market data provider.
type ProviderConfig struct {
	Name           string        `mapstructure:"name"` // polygon, yahoo, replay
	PolygonBaseURL string        `mapstructure:"polygon_base_url"`
	YahooBaseURL   string        `mapstructure:"yahoo_base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	FixturesPath   string        `mapstructure:"fixtures_path"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// CacheConfig holds the SQLite bar cache and report archive settings.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// EngineConfig holds plan execution settings.
type EngineConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PlannerConfig holds LLM planner settings.
type PlannerConfig struct {
	Model       string `mapstructure:"model"`
	BaseURL     string `mapstructure:"base_url"`
	MaxTokens   int    `mapstructure:"max_tokens"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TextfilePath string `mapstructure:"textfile_path"`
}

// TracingConfig controls the OpenTelemetry stdout exporter.
type TracingConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	PrettyPrint bool `mapstructure:"pretty_print"`
}

// WatchConfig holds scheduled re-run settings.
type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// Credentials holds API credentials.
type Credentials struct {
	Polygon PolygonCredentials `mapstructure:"polygon"`
	OpenAI  OpenAICredentials  `mapstructure:"openai"`
}

// PolygonCredentials holds Polygon.io credentials.
type PolygonCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// Provider names.
const (
	ProviderPolygon = "polygon"
	ProviderYahoo   = "yahoo"
	ProviderReplay  = "replay"
)

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stock-analyst"
	}
	return filepath.Join(home, ".config", "stock-analyst")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("provider.name", ProviderPolygon)
	v.SetDefault("provider.polygon_base_url", "https://api.polygon.io")
	v.SetDefault("provider.yahoo_base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("provider.timeout", "30s")
	v.SetDefault("provider.fixtures_path", "")
	v.SetDefault("provider.breaker.enabled", true)
	v.SetDefault("provider.breaker.failure_threshold", 5)
	v.SetDefault("provider.breaker.reset_timeout", "30s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(configDir, "data", "analyst.db"))
	v.SetDefault("cache.ttl", "1h")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.timeout", "2m")

	v.SetDefault("planner.model", "gpt-4o-mini")
	v.SetDefault("planner.base_url", "")
	v.SetDefault("planner.max_tokens", 2000)
	v.SetDefault("planner.max_attempts", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "analyst.log"))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile_path", filepath.Join(configDir, "metrics", "analyst.prom"))

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.pretty_print", false)

	v.SetDefault("watch.schedule", "0 18 * * 1-5")

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")
}

// Default returns the built-in configuration for configDir without reading
// any file.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{Dir: configDir}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. Missing files are
// created from templates and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env values never override variables already set.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	cfg := &Config{Dir: configDir}

	created, err := loadConfigFile(configDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if created != "" {
		cfg.Created = append(cfg.Created, created)
	}

	created, err = loadCredentials(configDir, &cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}
	if created != "" {
		cfg.Created = append(cfg.Created, created)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, cfg *Config) (string, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	var created string
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return "", err
		}
		path, err := createTemplateConfig(configDir)
		if err != nil {
			return "", err
		}
		created = path
	}

	return created, v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) (string, error) {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return "", err
	}

	return "", v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Credentials.Polygon.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Planner.Model = v
	}
	if v := os.Getenv("STOCK_ANALYST_PROVIDER"); v != "" {
		cfg.Provider.Name = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("STOCK_ANALYST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

var logLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Provider.Name {
	case ProviderPolygon, ProviderYahoo:
	case ProviderReplay:
		if c.Provider.FixturesPath == "" {
			return errors.Wrap(errors.ErrConfigInvalid, "provider.fixtures_path is required for the replay provider")
		}
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "invalid provider: %s (must be polygon, yahoo or replay)", c.Provider.Name)
	}

	if c.Provider.Timeout < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "provider.timeout must be non-negative")
	}
	if c.Provider.Breaker.Enabled && c.Provider.Breaker.FailureThreshold < 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "provider.breaker.failure_threshold must be at least 1")
	}
	if c.Cache.TTL < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "cache.ttl must be non-negative")
	}
	if c.Engine.Workers < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "engine.workers must be non-negative")
	}
	if c.Engine.Timeout < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "engine.timeout must be non-negative")
	}
	if c.Planner.MaxTokens < 0 || c.Planner.MaxAttempts < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "planner limits must be non-negative")
	}
	if !logLevels[strings.ToLower(c.Logging.Level)] {
		return errors.Wrapf(errors.ErrConfigInvalid, "invalid log level: %s", c.Logging.Level)
	}
	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return errors.Wrapf(errors.ErrConfigInvalid, "invalid watch.schedule %q: %v", c.Watch.Schedule, err)
		}
	}

	return nil
}

// HasPolygonKey reports whether a Polygon API key is configured.
func (c *Config) HasPolygonKey() bool {
	return strings.TrimSpace(c.Credentials.Polygon.APIKey) != ""
}

// HasOpenAIKey reports whether an OpenAI API key is configured.
func (c *Config) HasOpenAIKey() bool {
	return strings.TrimSpace(c.Credentials.OpenAI.APIKey) != ""
}
