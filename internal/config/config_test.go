package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5005", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(1<<20), cfg.MaxRequestBodySize)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "order-events", cfg.OrderEventsTopic)
	assert.Equal(t, 5*time.Second, cfg.Payment.Timeout)
	assert.False(t, cfg.Payment.SkipVerify)
	assert.False(t, cfg.Payment.Configured())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("PAYMENT_SKIP_VERIFY", "true")
	t.Setenv("PAYMENT_TIMEOUT", "2s")
	t.Setenv("IAMPORT_API_KEY", "key")
	t.Setenv("IAMPORT_API_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.True(t, cfg.Payment.SkipVerify)
	assert.Equal(t, 2*time.Second, cfg.Payment.Timeout)
	assert.True(t, cfg.Payment.Configured())
	assert.Equal(t, "k1:9092,k2:9092", cfg.KafkaBrokers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PORT", "abc")
	t.Setenv("PAYMENT_SKIP_VERIFY", "maybe")
	t.Setenv("PAYMENT_TIMEOUT", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), "invalid DB_PORT")
	assert.Contains(t, err.Error(), "invalid PAYMENT_SKIP_VERIFY")
	assert.Contains(t, err.Error(), "PAYMENT_TIMEOUT must be positive")
}
