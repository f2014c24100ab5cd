// Package config loads worker configuration from YAML with environment
// overrides. Precedence: defaults, then the config file, then
// FEED_WATCHDOG_* environment variables.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yakimka/feed-watchdog/errors"
)

// EnvPrefix is the prefix of every environment override
const EnvPrefix = "FEED_WATCHDOG_"

// Config is the complete worker configuration
type Config struct {
	App     AppConfig     `yaml:"app"`
	Redis   RedisConfig   `yaml:"redis"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// AppConfig holds pipeline wiring
type AppConfig struct {
	APIBaseURL       string `yaml:"api_base_url"`
	APIToken         string `yaml:"api_token"`
	HandlersConfPath string `yaml:"handlers_conf_path"`
	StreamsTopic     string `yaml:"streams_topic"`
	MessagesTopic    string `yaml:"messages_topic"`
}

// RedisConfig holds connection URLs. Storage (dedup sets, locks) and the
// message bus may live on separate databases or instances.
type RedisConfig struct {
	StorageURL string `yaml:"storage_url"`
	PubSubURL  string `yaml:"pub_sub_url"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		App: AppConfig{
			APIBaseURL:    "http://localhost:8000/api",
			StreamsTopic:  "feed_watchdog:streams",
			MessagesTopic: "feed_watchdog:messages",
		},
		Redis: RedisConfig{
			StorageURL: "redis://localhost:6379/1",
			PubSubURL:  "redis://localhost:6379/2",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (optional), applies environment
// overrides, and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "config", "Load", "config file read")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WrapInvalid(err, "config", "Load", "yaml decode")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from FEED_WATCHDOG_* variables
func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"API_BASE_URL":       &c.App.APIBaseURL,
		"API_TOKEN":          &c.App.APIToken,
		"HANDLERS_CONF_PATH": &c.App.HandlersConfPath,
		"STREAMS_TOPIC":      &c.App.StreamsTopic,
		"MESSAGES_TOPIC":     &c.App.MessagesTopic,
		"REDIS_STORAGE_URL":  &c.Redis.StorageURL,
		"REDIS_PUBSUB_URL":   &c.Redis.PubSubURL,
		"METRICS_LISTEN":     &c.Metrics.ListenAddr,
		"LOG_LEVEL":          &c.Logging.Level,
	}
	for name, target := range overrides {
		if value, ok := os.LookupEnv(EnvPrefix + name); ok {
			*target = value
		}
	}
	if value, ok := os.LookupEnv(EnvPrefix + "METRICS_ENABLED"); ok {
		c.Metrics.Enabled = value == "true" || value == "1"
	}
}

// Validate checks the configuration for required fields
func (c *Config) Validate() error {
	missing := func(field string) error {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrMissingConfig, field),
			"config", "Validate", "required field check")
	}

	if c.App.APIBaseURL == "" {
		return missing("app.api_base_url")
	}
	if c.App.StreamsTopic == "" {
		return missing("app.streams_topic")
	}
	if c.App.MessagesTopic == "" {
		return missing("app.messages_topic")
	}
	if c.Redis.StorageURL == "" {
		return missing("redis.storage_url")
	}
	if c.Redis.PubSubURL == "" {
		return missing("redis.pub_sub_url")
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return missing("metrics.listen_addr")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown log level %q", errors.ErrInvalidConfig, c.Logging.Level),
			"config", "Validate", "log level check")
	}
	return nil
}
