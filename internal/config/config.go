// Package config handles application configuration from environment variables
package config

import (
	"fmt"
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

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Credential hashing
	Pepper     string // Explicit pepper value; overrides env and the persisted file
	PepperPath string // Where to persist a generated pepper

	// Identity tokens (tenant self-service)
	IdentityJWTSecret string // HS256 verification secret for bearer identity tokens
	IdentityAudience  string // Expected "aud" claim; empty disables the check

	// Admin
	AdminToken string // x-admin-token value; empty disables admin endpoints (503)

	// Price feed
	PriceFeedURL      string // Upstream JSON feed polled by the snapshot producer
	PricePollInterval time.Duration

	// Security
	RateLimitRPM int // Per-IP request ceiling for the outer limiter

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

// Defaults
const (
	DefaultPort         = "5001"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultPepperPath   = "data/api_key_pepper"
	DefaultPollInterval = 60 * time.Second
	DefaultRateLimit    = 300
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		Pepper:            os.Getenv("API_KEY_PEPPER"),
		PepperPath:        getEnv("API_KEY_PEPPER_PATH", DefaultPepperPath),
		IdentityJWTSecret: os.Getenv("IDENTITY_JWT_SECRET"),
		IdentityAudience:  os.Getenv("IDENTITY_AUDIENCE"),
		AdminToken:        os.Getenv("ADMIN_TOKEN"),
		PriceFeedURL:      os.Getenv("PRICE_FEED_URL"),
		PricePollInterval: getEnvDuration("PRICE_POLL_INTERVAL", DefaultPollInterval),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.PricePollInterval < time.Second {
		return fmt.Errorf("PRICE_POLL_INTERVAL must be at least 1s")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	// The pepper file path only matters when no explicit pepper is set
	if c.Pepper == "" && c.PepperPath == "" {
		return fmt.Errorf("API_KEY_PEPPER_PATH is required when API_KEY_PEPPER is not set")
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
