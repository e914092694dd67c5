package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("STORAGE", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, 168*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 24*time.Hour, cfg.ReminderWindow)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.PaymentsEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MONGO_TRANSACTIONS", "yes")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CURRENCY", "eur")
	t.Setenv("RETRY_BACKOFF", "2s,10s")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMongo, cfg.Storage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.MongoTransactions)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, []time.Duration{2 * time.Second, 10 * time.Second}, cfg.RetryBackoff)
	assert.True(t, cfg.PaymentsEnabled())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name, key, value string
	}{
		{"duration", "IDEMP_TTL", "soon"},
		{"bool", "S3_USE_SSL", "maybe"},
		{"int", "REDIS_DB", "three"},
		{"backoff", "RETRY_BACKOFF", "1s,never"},
		{"storage", "STORAGE", "postgres"},
		{"currency", "CURRENCY", "dollars"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("MONGO_URI", "")
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("mongo without uri", func(t *testing.T) {
		t.Setenv("MONGO_URI", "")
		t.Setenv("STORAGE", StorageMongo)
		_, err := Load()
		assert.ErrorContains(t, err, "MONGO_URI")
	})
}
