package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aryanshanu/unifiedaai-sub002/pkg/config"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
// Invariant: the server must boot in lite mode with no configuration.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_ADDR", "DATA_DIR",
		"ENGINE_CONFIG_DIR", "PROBE_ENDPOINT", "CHECKPOINT_SECRET",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SERVICE_NAME",
		"IMPACT_MIN_SAMPLE_COUNT", "IMPACT_COVERAGE_THRESHOLD", "RATE_LIMIT_RPS",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.True(t, cfg.LiteMode())
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "unifiedaai-core", cfg.ServiceName)
	assert.Zero(t, cfg.MinSampleCount, "zero defers to the aggregator default")
	assert.Equal(t, 10, cfg.RateLimitRPS)
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
// Invariant: ops control config via standard 12-factor env vars.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("PROBE_ENDPOINT", "https://probes.internal/v1/collect")
	t.Setenv("IMPACT_MIN_SAMPLE_COUNT", "50")
	t.Setenv("IMPACT_COVERAGE_THRESHOLD", "0.9")
	t.Setenv("RATE_LIMIT_RPS", "25")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.False(t, cfg.LiteMode())
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "https://probes.internal/v1/collect", cfg.ProbeEndpoint)
	assert.Equal(t, 50, cfg.MinSampleCount)
	assert.InDelta(t, 0.9, cfg.CoverageThreshold, 1e-9)
	assert.Equal(t, 25, cfg.RateLimitRPS)
}

// TestLoad_MalformedNumbers verifies that unparseable numeric env vars
// fall back to defaults instead of crashing startup.
func TestLoad_MalformedNumbers(t *testing.T) {
	t.Setenv("IMPACT_MIN_SAMPLE_COUNT", "not-a-number")
	t.Setenv("RATE_LIMIT_RPS", "10.5")

	cfg := config.Load()

	assert.Zero(t, cfg.MinSampleCount)
	assert.Equal(t, 10, cfg.RateLimitRPS)
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := &config.Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), "level %q", in)
	}
}
