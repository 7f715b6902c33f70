package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "memory", cfg.ArkivBackend)
	assert.Equal(t, 2000*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("ARKIV_BACKEND", "sqlite")
	t.Setenv("POLL_INTERVAL_MS", "500")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "sqlite", cfg.ArkivBackend)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
}

func TestLoadIgnoresBadPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "soon")

	cfg := Load()
	assert.Equal(t, 2000*time.Millisecond, cfg.PollInterval)
}

func TestProductionRequiresPersistentBackend(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("ARKIV_BACKEND", "memory")

	assert.Panics(t, func() { Load() })
}
