package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Environment string
	LogLevel    string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// RedisURL is optional; when empty the run lock is skipped and
	// concurrent runs are the operator's problem.
	RedisURL string

	// MetricsAddr is optional; when empty no metrics endpoint is served.
	MetricsAddr string

	Workers    int
	ReportPath string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	workers, err := strconv.Atoi(getEnv("MIGRATION_WORKERS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATION_WORKERS: %w", err)
	}
	if workers < 1 {
		workers = 1
	}

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      dbPort,
		DBUser:      getEnv("DB_USER", "ownermatch"),
		DBPassword:  getEnv("DB_PASSWORD", "dev"),
		DBName:      getEnv("DB_NAME", "ownermatch"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		RedisURL:    getEnv("REDIS_URL", ""),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
		Workers:     workers,
		ReportPath:  getEnv("UNMATCHED_REPORT_PATH", "unmatched_identities.csv"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
