package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Ingestion    IngestionConfig    `mapstructure:"ingestion"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Enrichment   EnrichmentConfig   `mapstructure:"enrichment"`
	Notification NotificationConfig `mapstructure:"notification"`
	Rotation     RotationConfig     `mapstructure:"rotation"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	// URL is a postgres connection string. Empty selects the in-memory
	// repository, which does not survive restarts.
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type IngestionConfig struct {
	MaxBatchSize      int           `mapstructure:"max_batch_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

type PipelineConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	Workers   int           `mapstructure:"workers"`
	DLQ       DLQConfig     `mapstructure:"dlq"`
}

type DLQConfig struct {
	// Backend is "none", "file" or "jetstream". With "none" failed events
	// retry forever.
	Backend     string `mapstructure:"backend"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	FilePath    string `mapstructure:"file_path"`
	NATSURL     string `mapstructure:"nats_url"`
}

type EnrichmentConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type NotificationConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RotationConfig struct {
	// DefaultGrace is the grace window applied when a rotation request does
	// not specify one.
	DefaultGrace time.Duration `mapstructure:"default_grace"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("ingestion.max_batch_size", 100)
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 1000)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("pipeline.interval", "30s")
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.dlq.backend", "none")
	v.SetDefault("pipeline.dlq.max_attempts", 5)
	v.SetDefault("pipeline.dlq.file_path", "sentrix-dlq.jsonl")
	v.SetDefault("pipeline.dlq.nats_url", "nats://localhost:4222")
	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.base_url", "http://ip-api.com/json")
	v.SetDefault("enrichment.timeout", "5s")
	v.SetDefault("enrichment.cache_ttl", "1h")
	v.SetDefault("notification.webhook_url", "")
	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("rotation.default_grace", "24h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sentrix")
	}

	// Environment variables override
	v.SetEnvPrefix("SENTRIX")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
