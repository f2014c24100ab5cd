package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yakimka/feed-watchdog/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "feed_watchdog:streams", cfg.App.StreamsTopic)
	assert.Equal(t, "feed_watchdog:messages", cfg.App.MessagesTopic)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.StorageURL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
app:
  api_base_url: https://api.example.com/api
  api_token: sekret
redis:
  storage_url: redis://redis-storage:6379/0
logging:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api", cfg.App.APIBaseURL)
	assert.Equal(t, "sekret", cfg.App.APIToken)
	assert.Equal(t, "redis://redis-storage:6379/0", cfg.Redis.StorageURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched fields keep their defaults
	assert.Equal(t, "feed_watchdog:streams", cfg.App.StreamsTopic)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
app:
  api_token: from-file
`)
	t.Setenv("FEED_WATCHDOG_API_TOKEN", "from-env")
	t.Setenv("FEED_WATCHDOG_METRICS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.App.APIToken)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing api base url", mutate: func(c *Config) { c.App.APIBaseURL = "" }},
		{name: "missing streams topic", mutate: func(c *Config) { c.App.StreamsTopic = "" }},
		{name: "missing messages topic", mutate: func(c *Config) { c.App.MessagesTopic = "" }},
		{name: "missing storage url", mutate: func(c *Config) { c.Redis.StorageURL = "" }},
		{name: "metrics enabled without addr", mutate: func(c *Config) { c.Metrics.ListenAddr = "" }},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}
