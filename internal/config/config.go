// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Downstream decision sources (gateway)
	RuleEngineURL string
	MLModelURL    string

	// Per-source dispatch timeout
	DispatchTimeout time.Duration

	// Velocity/pattern store (rule engine)
	RedisURL string

	// Verdict audit store (optional, uses in-memory if not set)
	DatabaseURL string

	// Security
	APIKey       string // Gateway API key; unset is a server misconfiguration surfaced per request
	RateLimitRPM int

	// High-risk alerting (optional)
	AlertWebhookURL    string
	AlertWebhookSecret string

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultRuleEngineURL   = "http://rule-engine-service:3001"
	DefaultMLModelURL      = "http://ml-model-service:8000"
	DefaultDispatchTimeout = 1000 * time.Millisecond
	DefaultRateLimit       = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		RuleEngineURL:      getEnv("RULE_ENGINE_URL", DefaultRuleEngineURL),
		MLModelURL:         getEnv("ML_MODEL_URL", DefaultMLModelURL),
		DispatchTimeout:    time.Duration(getEnvInt64("DISPATCH_TIMEOUT_MS", DefaultDispatchTimeout.Milliseconds())) * time.Millisecond,
		RedisURL:           os.Getenv("REDIS_URL"), // Optional, uses in-memory if not set
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		APIKey:             os.Getenv("API_KEY"),      // Checked per request, not at startup
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		AlertWebhookURL:    os.Getenv("ALERT_WEBHOOK_URL"),
		AlertWebhookSecret: os.Getenv("ALERT_WEBHOOK_SECRET"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if _, err := url.Parse(c.RuleEngineURL); err != nil {
		return fmt.Errorf("RULE_ENGINE_URL is invalid: %w", err)
	}
	if _, err := url.Parse(c.MLModelURL); err != nil {
		return fmt.Errorf("ML_MODEL_URL is invalid: %w", err)
	}
	if c.DispatchTimeout <= 0 {
		return fmt.Errorf("DISPATCH_TIMEOUT_MS must be positive")
	}
	if c.AlertWebhookURL != "" {
		u, err := url.Parse(c.AlertWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("ALERT_WEBHOOK_URL must be an http(s) URL")
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
