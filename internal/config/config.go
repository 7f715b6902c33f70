package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Entity store backend: "memory", "sqlite" or "postgres".
	ArkivBackend string
	DatabaseURL  string
	SQLitePath   string

	// Redis is only used for rate limiting; the limiter is disabled
	// when no URL is configured.
	RedisURL string

	// Live-update poll interval for entity subscriptions.
	PollInterval time.Duration

	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", "development"),
		ArkivBackend: getEnv("ARKIV_BACKEND", "memory"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		SQLitePath:   os.Getenv("SQLITE_PATH"),
		RedisURL:     os.Getenv("REDIS_URL"),
		PollInterval: 2000 * time.Millisecond,
	}

	if raw := os.Getenv("POLL_INTERVAL_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.PollInterval = time.Duration(ms) * time.Millisecond
		}
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production the in-memory backend would silently lose the ledger
	// on restart; require a persistent one.
	if cfg.Env == "production" {
		if cfg.ArkivBackend == "memory" {
			panic("ARKIV_BACKEND must be sqlite or postgres in production")
		}
		if cfg.ArkivBackend == "postgres" && cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required for the postgres backend")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
