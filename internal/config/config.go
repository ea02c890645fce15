package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MaxPositionCacheTTL bounds how long cached positions may live
const MaxPositionCacheTTL = time.Hour

// Config holds all configuration values for the application
type Config struct {
	Port                   string
	AllowedOrigins         []string
	LogLevel               string
	DatabaseURL            string
	RedisURL               string
	JWTSecret              string
	JWTIssuer              string
	Environment            string
	PosterFetchConcurrency int
	PositionCacheTTL       time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	concurrency, err := getIntEnv("POSTER_FETCH_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("POSTER_FETCH_CONCURRENCY must be at least 1, got %d", concurrency)
	}

	ttl, err := getDurationEnv("POSITION_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 || ttl > MaxPositionCacheTTL {
		return nil, fmt.Errorf("POSITION_CACHE_TTL must be positive and at most %s, got %s", MaxPositionCacheTTL, ttl)
	}

	return &Config{
		Port:                   getEnv("PORT", "8080"),
		AllowedOrigins:         parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		JWTIssuer:              getEnv("JWT_ISSUER", ""),
		Environment:            getEnv("ENVIRONMENT", "production"),
		PosterFetchConcurrency: concurrency,
		PositionCacheTTL:       ttl,
	}, nil
}

// Validate reports settings the server cannot start without
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

// getDurationEnv accepts Go durations ("45s") or plain seconds ("45")
func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
