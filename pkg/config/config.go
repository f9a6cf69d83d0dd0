// Package config loads application configuration from a YAML file
// with environment overrides and documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Server
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`

	// Provider
	Provider    string  `yaml:"provider"`
	OpenAIKey   string  `yaml:"openai_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Prompt
	Persona     string `yaml:"persona"`
	TokenBudget int    `yaml:"token_budget"`

	// Retry policy
	Retry RetryConfig `yaml:"retry"`

	// Timeout bounds a single completion call end to end.
	Timeout time.Duration `yaml:"timeout"`

	// Rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Storage
	Storage StorageConfig `yaml:"storage"`
}

// RetryConfig holds the completion retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// RateLimitConfig holds the per-IP request limit
type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

// StorageConfig selects and configures the session repository
type StorageConfig struct {
	// Backend is one of "file", "redis", "memory".
	Backend string `yaml:"backend"`
	// Dir is the data directory for the file backend.
	Dir string `yaml:"dir"`
	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Port:        5000,
		CORSOrigin:  "*",
		Provider:    "openai",
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   1000,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1000 * time.Millisecond,
		},
		Timeout: 30 * time.Second,
		RateLimit: RateLimitConfig{
			PerMinute: 60,
			Burst:     60,
		},
		Storage: StorageConfig{
			Backend: "file",
		},
	}
}

// Load reads configuration from a YAML file, applies defaults, and
// then environment overrides. A missing file is not an error; the
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnv overrides config fields from the environment.
func applyEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.Model = model
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if origin := os.Getenv("CORS_ORIGIN"); origin != "" {
		cfg.CORSOrigin = origin
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Storage.Redis.Addr = addr
	}
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = def.CORSOrigin
	}
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = def.Retry.BaseDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimit.PerMinute == 0 {
		cfg.RateLimit.PerMinute = def.RateLimit.PerMinute
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.PerMinute
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OpenAIKey == "" {
		return fmt.Errorf("openai_key is required (set OPENAI_API_KEY)")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	switch c.Storage.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required for the redis backend")
	}
	return nil
}
