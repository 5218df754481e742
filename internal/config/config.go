// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	DefaultModel    string `yaml:"default_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent provider calls per transport
}

type WorkerConfig struct {
	Workers int `yaml:"workers"` // generation worker pool size
}

type AdminConfig struct {
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	Password      string `yaml:"password"`
}

type BrokerConfig struct {
	DefaultTimeoutMs int64 `yaml:"default_timeout_ms"` // applied when a job carries no timeout
	RatePerMinute    int   `yaml:"rate_per_minute"`    // generation starts per payer per minute
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // AES key for pooled-account tokens at rest
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Admin    AdminConfig    `yaml:"admin"`
	Broker   BrokerConfig   `yaml:"broker"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 8
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Broker.DefaultTimeoutMs <= 0 {
		cfg.Broker.DefaultTimeoutMs = 120_000
	}
	if cfg.Broker.RatePerMinute <= 0 {
		cfg.Broker.RatePerMinute = 20
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// secrets may come from the environment instead of the file
	if cfg.AI.OpenAIKey == "" {
		cfg.AI.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.AI.GeminiKey == "" {
		cfg.AI.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.Admin.SessionSecret == "" {
		cfg.Admin.SessionSecret = os.Getenv("ADMIN_SESSION_SECRET")
	}
	if cfg.Security.EncryptionKey == "" {
		cfg.Security.EncryptionKey = os.Getenv("BROKER_ENCRYPTION_KEY")
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
