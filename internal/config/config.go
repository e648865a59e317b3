package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultAppName         = "WalletLedger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultSweepInterval   = 10 * time.Minute
	defaultMaxAmount       = "1000000"
	defaultMaxAttempts     = 3
	defaultRetryBackoff    = 10 * time.Millisecond
	defaultReferencePrefix = "TXN"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
	maxAmountEnvVar        = "MAX_TRANSFER_AMOUNT"
	maxAttemptsEnvVar      = "TRANSFER_MAX_ATTEMPTS"
	retryBackoffEnvVar     = "TRANSFER_RETRY_BACKOFF"
	sweepIntervalEnvVar    = "IDEMPOTENCY_SWEEP_INTERVAL"
	referencePrefixEnvVar  = "REFERENCE_PREFIX"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string
	AppEnv          string
	Port            string
	LogLevel        string
	LogFormat       string
	DatabaseURL     string
	RedisURL        string
	NATSURL         string
	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	SweepInterval   time.Duration
	MaxAmount       decimal.Decimal
	MaxAttempts     int
	RetryBackoff    time.Duration
	ReferencePrefix string
}

// Load reads configuration values from the environment and populates a Config instance.
// Outside development DATABASE_URL and REDIS_URL are mandatory; in development
// the in-memory stores stand in for them.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		NATSURL:         os.Getenv("NATS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		SweepInterval:   defaultSweepInterval,
		MaxAttempts:     defaultMaxAttempts,
		RetryBackoff:    defaultRetryBackoff,
		ReferencePrefix: strings.ToUpper(getEnv(referencePrefixEnvVar, defaultReferencePrefix)),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = durationFromEnv("", sweepIntervalEnvVar, cfg.SweepInterval); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = durationFromEnv("", retryBackoffEnvVar, cfg.RetryBackoff); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(maxAttemptsEnvVar); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", maxAttemptsEnvVar, err)
		}
		if attempts < 1 {
			return Config{}, fmt.Errorf("invalid %s: must be at least 1", maxAttemptsEnvVar)
		}
		cfg.MaxAttempts = attempts
	}

	cfg.MaxAmount, err = decimal.NewFromString(getEnv(maxAmountEnvVar, defaultMaxAmount))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", maxAmountEnvVar, err)
	}
	if cfg.MaxAmount.IsNegative() {
		return Config{}, fmt.Errorf("invalid %s: cannot be negative", maxAmountEnvVar)
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("invalid LOG_FORMAT %q: want json or text", cfg.LogFormat)
	}

	if cfg.ReferencePrefix == "" || strings.Contains(cfg.ReferencePrefix, "-") {
		return Config{}, fmt.Errorf("invalid %s %q", referencePrefixEnvVar, cfg.ReferencePrefix)
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// durationFromEnv reads whole seconds from secondsKey, falling back to a Go
// duration string in durationKey. Either key may be empty.
func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
	}
	if durationKey != "" {
		if v := os.Getenv(durationKey); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
			}
			return d, nil
		}
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
