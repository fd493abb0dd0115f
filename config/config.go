package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sentinel/core"
)

// Config holds all configuration for the Sentinel service
type Config struct {
	// DataDir is the base data directory (SENTINEL_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`

	Database struct {
		// Path is the SQLite database file path (SENTINEL_DATABASE_PATH)
		// Empty = derive from data_dir. ":memory:" runs fully in memory.
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Evaluation struct {
		// Interval between alert rule evaluation cycles
		Interval time.Duration `mapstructure:"interval"`
		// RuleTimeout bounds a single rule evaluation
		RuleTimeout time.Duration `mapstructure:"rule_timeout"`
		WorkerCount int           `mapstructure:"worker_count"`
		QueueSize   int           `mapstructure:"queue_size"`
	} `mapstructure:"evaluation"`

	Anomaly struct {
		Enabled bool `mapstructure:"enabled"`
		// Window is the sample lookback used for baseline statistics
		Window   time.Duration `mapstructure:"window"`
		Interval time.Duration `mapstructure:"interval"`
		// Metrics lists the metric names to baseline; empty disables detection
		Metrics []string `mapstructure:"metrics"`
	} `mapstructure:"anomaly"`

	Cache struct {
		// Size is the LRU indicator cache capacity
		Size int           `mapstructure:"size"`
		TTL  time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`

	Notifications struct {
		// MinSeverity filters events below this severity (info/low/medium/high/critical)
		MinSeverity string `mapstructure:"min_severity"`
		Webhook     struct {
			Enabled bool   `mapstructure:"enabled"`
			URL     string `mapstructure:"url"`
			Timeout time.Duration `mapstructure:"timeout"`
		} `mapstructure:"webhook"`
	} `mapstructure:"notifications"`

	Metrics struct {
		// Enabled controls the Prometheus /metrics listener
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"metrics"`

	Retention struct {
		// Metrics is how long metric samples are kept, in days
		Metrics int `mapstructure:"metrics"`
		// Indicators is how long inactive indicators are kept, in days
		Indicators int `mapstructure:"indicators"`
		// CleanupInterval is how often expiration and retention sweeps run
		CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	} `mapstructure:"retention"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("database.path", "") // Empty = derive from data_dir

	viper.SetDefault("evaluation.interval", 30*time.Second)
	viper.SetDefault("evaluation.rule_timeout", 10*time.Second)
	viper.SetDefault("evaluation.worker_count", 4)
	viper.SetDefault("evaluation.queue_size", 256)

	viper.SetDefault("anomaly.enabled", true)
	viper.SetDefault("anomaly.window", 1*time.Hour)
	viper.SetDefault("anomaly.interval", 5*time.Minute)
	viper.SetDefault("anomaly.metrics", []string{})

	viper.SetDefault("cache.size", 4096)
	viper.SetDefault("cache.ttl", 5*time.Minute)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("notifications.min_severity", "low")
	viper.SetDefault("notifications.webhook.enabled", false)
	viper.SetDefault("notifications.webhook.url", "")
	viper.SetDefault("notifications.webhook.timeout", 10*time.Second)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.host", "127.0.0.1")
	viper.SetDefault("metrics.port", 9090)

	viper.SetDefault("retention.metrics", 30)
	viper.SetDefault("retention.indicators", 90)
	viper.SetDefault("retention.cleanup_interval", 1*time.Hour)

	viper.SetDefault("logging.level", "info")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("SENTINEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicit bindings for the most commonly overridden settings
	_ = viper.BindEnv("data_dir", "SENTINEL_DATA_DIR")
	_ = viper.BindEnv("database.path", "SENTINEL_DATABASE_PATH")
	_ = viper.BindEnv("redis.addr", "SENTINEL_REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "SENTINEL_REDIS_PASSWORD")
	_ = viper.BindEnv("notifications.webhook.url", "SENTINEL_WEBHOOK_URL")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.resolvePaths()

	return &config, nil
}

// LoadConfigFile loads configuration from an explicit file path
func LoadConfigFile(path string) (*Config, error) {
	viper.SetConfigFile(path)

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file %s: %w", path, err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config.resolvePaths()

	return &config, nil
}

// resolvePaths derives unset paths from the data directory
func (c *Config) resolvePaths() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Database.Path == "" {
		c.Database.Path = c.DataDir + "/sentinel.db"
	}
}

func validateConfig(config *Config) error {
	if config.Evaluation.Interval < time.Second {
		return fmt.Errorf("evaluation interval must be at least 1s, got %s", config.Evaluation.Interval)
	}
	if config.Evaluation.RuleTimeout <= 0 {
		return fmt.Errorf("evaluation rule timeout must be positive")
	}
	if config.Evaluation.WorkerCount < 1 {
		return fmt.Errorf("evaluation worker count must be at least 1, got %d", config.Evaluation.WorkerCount)
	}
	if config.Evaluation.QueueSize < 1 {
		return fmt.Errorf("evaluation queue size must be at least 1, got %d", config.Evaluation.QueueSize)
	}

	if config.Anomaly.Enabled {
		if config.Anomaly.Window < time.Minute {
			return fmt.Errorf("anomaly window must be at least 1m, got %s", config.Anomaly.Window)
		}
		if config.Anomaly.Interval < time.Second {
			return fmt.Errorf("anomaly interval must be at least 1s, got %s", config.Anomaly.Interval)
		}
	}

	if config.Cache.Size < 1 {
		return fmt.Errorf("cache size must be at least 1, got %d", config.Cache.Size)
	}

	if config.Redis.Enabled && config.Redis.Addr == "" {
		return fmt.Errorf("redis addr cannot be empty when redis is enabled")
	}

	if !core.Severity(config.Notifications.MinSeverity).IsValid() {
		return fmt.Errorf("invalid notifications min_severity: %q", config.Notifications.MinSeverity)
	}

	if config.Notifications.Webhook.Enabled {
		parsed, err := url.Parse(config.Notifications.Webhook.URL)
		if err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid webhook URL: scheme must be http or https")
		}
		if parsed.Host == "" {
			return fmt.Errorf("invalid webhook URL: missing host")
		}
	}

	if config.Metrics.Enabled {
		if config.Metrics.Port < 1 || config.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", config.Metrics.Port)
		}
		if config.Metrics.Host == "" {
			return fmt.Errorf("metrics host cannot be empty")
		}
	}

	if config.Retention.Metrics <= 0 {
		return fmt.Errorf("retention metrics must be positive")
	}
	if config.Retention.Indicators <= 0 {
		return fmt.Errorf("retention indicators must be positive")
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", config.Logging.Level)
	}

	return nil
}
