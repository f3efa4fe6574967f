package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	DatabaseURL string
	LogLevel    string

	ClimateAPIURL      string
	ClimateAPITimeout  time.Duration
	HealthTimeout      time.Duration
	ClimateAPIAttempts int
	RetryDelay         time.Duration
	RateLimit          float64

	NatsURL   string
	NatsToken string

	UserHeader  string
	DefaultUser string

	ExportTempDir string
}

func Load() Config {
	return Config{
		Port:        envInt("ADAPTA_PORT", 8000),
		DatabaseURL: envStr("DATABASE_URL", "data/adapta.db"),
		LogLevel:    envStr("LOG_LEVEL", "info"),

		ClimateAPIURL:      envStr("CLIMATE_API_URL", "http://localhost:8001"),
		ClimateAPITimeout:  envDuration("CLIMATE_API_TIMEOUT", 120*time.Second),
		HealthTimeout:      envDuration("CLIMATE_API_HEALTH_TIMEOUT", 10*time.Second),
		ClimateAPIAttempts: envInt("CLIMATE_API_ATTEMPTS", 3),
		RetryDelay:         envDuration("CLIMATE_API_RETRY_DELAY", time.Second),
		RateLimit:          envFloat("CLIMATE_API_RATE_LIMIT", 5),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),

		UserHeader:  envStr("AUTH_USER_HEADER", "X-User-Id"),
		DefaultUser: envStr("DEFAULT_USER", ""),

		ExportTempDir: envStr("EXPORT_TEMP_DIR", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
