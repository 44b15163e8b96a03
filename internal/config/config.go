package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the dispatcher.
type Config struct {
	Port            string
	DatabaseURL     string
	RedisURL        string
	DeliveryTimeout time.Duration

	// Defaults applied to newly registered subscribers.
	DefaultMaxAttempts int
	DefaultBaseDelayMs int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		DeliveryTimeout:    time.Duration(getEnvInt("DELIVERY_TIMEOUT_MS", 30000)) * time.Millisecond,
		DefaultMaxAttempts: getEnvInt("DEFAULT_MAX_ATTEMPTS", 5),
		DefaultBaseDelayMs: getEnvInt("DEFAULT_BASE_DELAY_MS", 60000),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
