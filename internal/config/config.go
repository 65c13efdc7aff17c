package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken string

	// Output
	OutputDir string

	// Fetch behavior
	RequestDelay      time.Duration
	RateLimitCooldown time.Duration
	MaxRepos          int
	FetchWorkers      int

	// Run history storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		GitHubToken:       getEnv("GITHUB_TOKEN", ""),
		OutputDir:         getEnv("OUTPUT_DIR", "./sboms"),
		RequestDelay:      getEnvSeconds("REQUEST_DELAY_SECONDS", 1),
		RateLimitCooldown: getEnvSeconds("RATE_LIMIT_COOLDOWN_SECONDS", 60),
		MaxRepos:          getEnvInt("MAX_REPOS", 1000),
		FetchWorkers:      getEnvInt("FETCH_WORKERS", 1),
		StorageType:       getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:        getEnv("SQLITE_PATH", "./sbom-runs.db"),
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		APIPort:           getEnv("API_PORT", "8080"),
		APIHost:           getEnv("API_HOST", "localhost"),
		APIEndpoint:       getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

// getEnvSeconds returns a duration environment variable given in seconds
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GitHubToken == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "GitHub token is required"}
	}
	if c.OutputDir == "" {
		return &ConfigError{Field: "OUTPUT_DIR", Message: "output directory is required"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.MaxRepos > 1000 {
		return &ConfigError{Field: "MAX_REPOS", Message: "must not exceed 1000"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
