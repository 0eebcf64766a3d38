package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseURL selects the ledger backend: a postgres:// URL for
	// server deployments, empty for the embedded SQLite lite mode
	// under DataDir.
	DatabaseURL string

	// RedisAddr enables the distributed rate limiter; empty falls back
	// to per-process limiting.
	RedisAddr string

	DataDir         string
	EngineConfigDir string

	// ProbeEndpoint is the external model probe service. Empty means
	// evaluations must carry metrics inline.
	ProbeEndpoint string

	// CheckpointSecret is the root secret for checkpoint MACs. Empty
	// disables the checkpoint endpoint.
	CheckpointSecret string

	OTLPEndpoint string
	ServiceName  string

	// Impact thresholds; zero values defer to the aggregator defaults.
	MinSampleCount    int
	CoverageThreshold float64

	RateLimitRPS int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:              envOr("PORT", "8080"),
		LogLevel:          envOr("LOG_LEVEL", "INFO"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		DataDir:           envOr("DATA_DIR", "./data"),
		EngineConfigDir:   os.Getenv("ENGINE_CONFIG_DIR"),
		ProbeEndpoint:     os.Getenv("PROBE_ENDPOINT"),
		CheckpointSecret:  os.Getenv("CHECKPOINT_SECRET"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:       envOr("OTEL_SERVICE_NAME", "unifiedaai-core"),
		MinSampleCount:    envInt("IMPACT_MIN_SAMPLE_COUNT", 0),
		CoverageThreshold: envFloat("IMPACT_COVERAGE_THRESHOLD", 0),
		RateLimitRPS:      envInt("RATE_LIMIT_RPS", 10),
	}
}

// SlogLevel maps LogLevel onto slog's levels, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LiteMode reports whether the server runs on the embedded database.
func (c *Config) LiteMode() bool {
	return c.DatabaseURL == ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
