package config

import (
	"os"
	"strings"
)

// Config is the environment-driven service configuration. Secrets stay in the
// environment and are read where they are used; this struct only carries
// topology and tuning.
type Config struct {
	Environment      string
	Port             string
	PublicBaseURL    string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	BroadcastChannel string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Environment:      getEnvOrDefault("ENVIRONMENT", "development"),
		Port:             getEnvOrDefault("PORT", "8080"),
		PublicBaseURL:    getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		RedisHost:        os.Getenv("REDIS_HOST"),
		RedisPort:        getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		BroadcastChannel: getEnvOrDefault("BROADCAST_CHANNEL", "voice-call-events"),
	}
}

// IsProduction reports whether simulated fallbacks must be disabled.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production") || strings.EqualFold(c.Environment, "prod")
}

// RedisConfigured reports whether a redis endpoint has been set.
func (c *Config) RedisConfigured() bool {
	return c.RedisHost != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
