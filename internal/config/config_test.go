package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "REDIS_URL", "NATS_URL",
		shutdownSecondsEnvVar, shutdownDurationEnvVar, idemTTLSecondsEnvVar, idemTTLDurEnvVar,
		maxAmountEnvVar, maxAttemptsEnvVar, retryBackoffEnvVar, sweepIntervalEnvVar, referencePrefixEnvVar,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsInDevelopment(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, "TXN", cfg.ReferencePrefix)
	assert.True(t, cfg.MaxAmount.Equal(decimal.NewFromInt(1_000_000)))
}

func TestLoadRequiresBackendsOutsideDevelopment(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	_, err = Load()
	require.ErrorContains(t, err, "REDIS_URL")

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDev())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", ":9090")
	t.Setenv(maxAmountEnvVar, "2500.50")
	t.Setenv(maxAttemptsEnvVar, "5")
	t.Setenv(retryBackoffEnvVar, "25ms")
	t.Setenv(idemTTLSecondsEnvVar, "60")
	t.Setenv(idemTTLDurEnvVar, "2h")
	t.Setenv(referencePrefixEnvVar, "pay")
	t.Setenv("LOG_FORMAT", "TEXT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "2500.5", cfg.MaxAmount.String())
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 25*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, time.Minute, cfg.IdempotencyTTL, "seconds take precedence over durations")
	assert.Equal(t, "PAY", cfg.ReferencePrefix)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"attempts":     {maxAttemptsEnvVar, "0"},
		"attempts nan": {maxAttemptsEnvVar, "three"},
		"amount":       {maxAmountEnvVar, "-1"},
		"backoff":      {retryBackoffEnvVar, "soon"},
		"format":       {"LOG_FORMAT", "xml"},
		"prefix":       {referencePrefixEnvVar, "A-B"},
		"ttl":          {idemTTLSecondsEnvVar, "day"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
