package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("REGISTRY_POOL_SIZE", "")
	t.Setenv("VERIFICATION_POLL_INTERVAL", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Registry.NavTimeout)
	assert.Equal(t, 5*time.Second, cfg.Verification.PollInterval)
	assert.Equal(t, uint64(2), cfg.Registry.MaxRetries)
	assert.Equal(t, 3, cfg.Registry.PoolSize)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("REGISTRY_POOL_SIZE", "6")
	t.Setenv("REGISTRY_NAV_TIMEOUT", "12s")
	t.Setenv("VERIFICATION_POLL_INTERVAL", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Registry.PoolSize)
	assert.Equal(t, 12*time.Second, cfg.Registry.NavTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Verification.PollInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("REGISTRY_NAV_TIMEOUT", "soon")
		_, err := FromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REGISTRY_NAV_TIMEOUT")
	})
	t.Run("empty pool", func(t *testing.T) {
		t.Setenv("REGISTRY_POOL_SIZE", "0")
		_, err := FromEnv()
		require.Error(t, err)
	})
	t.Run("bad bool", func(t *testing.T) {
		t.Setenv("REGISTRY_HEADLESS", "maybe")
		_, err := FromEnv()
		require.Error(t, err)
	})
}
