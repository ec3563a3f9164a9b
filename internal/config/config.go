package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// FlotteQ core API (vehicles, availability, booking creation)
	CoreAPIBaseURL string
	CoreAPIToken   string
	CoreAPITimeout time.Duration

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Wizard session behaviour
	SessionTTL time.Duration

	AuthJWTSecret string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CoreAPIBaseURL: strings.TrimRight(getEnv("CORE_API_BASE_URL", ""), "/"),
		CoreAPIToken:   getEnv("CORE_API_TOKEN", ""),
		CoreAPITimeout: getEnvAsDuration("CORE_API_TIMEOUT", 20*time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SessionTTL: getEnvAsDuration("WIZARD_SESSION_TTL", 30*time.Minute),

		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
