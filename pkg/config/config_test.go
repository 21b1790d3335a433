package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("NATS_SERVERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NatsServers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REALTIME_BUS", "nats")
	t.Setenv("NATS_SERVERS", "nats://a:4222, nats://b:4222,")
	t.Setenv("DEV_TOKENS", "tok1:alice, bad, tok2:bob, :nobody")
	t.Setenv("ALLOWED_ORIGINS", "https://partshub.example")
	t.Setenv("MARK_READ_PER_MINUTE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "nats", cfg.RealtimeBus)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NatsServers)
	assert.Equal(t, map[string]string{"tok1": "alice", "tok2": "bob"}, cfg.DevTokens)
	assert.Equal(t, []string{"https://partshub.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 120, cfg.MarkReadPerMinute)
}

func TestLoadClient(t *testing.T) {
	t.Setenv("REFRESH_INTERVAL", "15s")
	t.Setenv("PULL_ATTEMPTS", "4")
	t.Setenv("RETRY_BASE_DELAY", "bogus")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 4, cfg.PullAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
}
