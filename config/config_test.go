package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	setDefaults()
	loadFromEnv()

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))
	require.NoError(t, validateConfig(&cfg))
	cfg.resolvePaths()
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "./data/sentinel.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.Evaluation.Interval)
	assert.Equal(t, 10*time.Second, cfg.Evaluation.RuleTimeout)
	assert.Equal(t, 4, cfg.Evaluation.WorkerCount)
	assert.Equal(t, 256, cfg.Evaluation.QueueSize)
	assert.True(t, cfg.Anomaly.Enabled)
	assert.Equal(t, 1*time.Hour, cfg.Anomaly.Window)
	assert.Equal(t, 4096, cfg.Cache.Size)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "low", cfg.Notifications.MinSeverity)
	assert.False(t, cfg.Notifications.Webhook.Enabled)
	assert.Equal(t, 30, cfg.Retention.Metrics)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("SENTINEL_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("SENTINEL_EVALUATION_WORKER_COUNT", "8")

	cfg := loadDefaults(t)

	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 8, cfg.Evaluation.WorkerCount)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
data_dir: /var/lib/sentinel
evaluation:
  interval: 15s
  worker_count: 2
notifications:
  min_severity: high
  webhook:
    enabled: true
    url: https://hooks.example.com/sentinel
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	viper.Reset()

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sentinel", cfg.DataDir)
	assert.Equal(t, "/var/lib/sentinel/sentinel.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Second, cfg.Evaluation.Interval)
	assert.Equal(t, 2, cfg.Evaluation.WorkerCount)
	assert.Equal(t, "high", cfg.Notifications.MinSeverity)
	assert.True(t, cfg.Notifications.Webhook.Enabled)
	// Untouched settings keep their defaults
	assert.Equal(t, 256, cfg.Evaluation.QueueSize)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	viper.Reset()
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config { return loadDefaults(t) }

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"interval too small", func(c *Config) { c.Evaluation.Interval = 100 * time.Millisecond }},
		{"zero rule timeout", func(c *Config) { c.Evaluation.RuleTimeout = 0 }},
		{"no workers", func(c *Config) { c.Evaluation.WorkerCount = 0 }},
		{"no queue", func(c *Config) { c.Evaluation.QueueSize = 0 }},
		{"anomaly window too small", func(c *Config) { c.Anomaly.Window = 10 * time.Second }},
		{"empty cache", func(c *Config) { c.Cache.Size = 0 }},
		{"redis enabled without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"bad min severity", func(c *Config) { c.Notifications.MinSeverity = "urgent" }},
		{"webhook missing host", func(c *Config) {
			c.Notifications.Webhook.Enabled = true
			c.Notifications.Webhook.URL = "https://"
		}},
		{"webhook bad scheme", func(c *Config) {
			c.Notifications.Webhook.Enabled = true
			c.Notifications.Webhook.URL = "ftp://hooks.example.com"
		}},
		{"negative metric retention", func(c *Config) { c.Retention.Metrics = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}
