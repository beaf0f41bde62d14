package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/hpa-platform/hpactl/internal/cli/userconfig"
)

const (
	// DefaultAPIBaseURL points at a local development backend
	DefaultAPIBaseURL = "http://localhost:8080/api"

	DefaultRequestTimeout  = 30 * time.Second
	DefaultRefreshInterval = 5 * time.Minute
)

// Config holds all configuration for the CLI
type Config struct {
	// API Configuration
	API APIConfig

	// Storage Configuration
	Storage StorageConfig

	// Session Configuration
	Session SessionConfig

	// Logging Configuration
	Logging LoggingConfig
}

// APIConfig holds backend connection configuration
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StorageConfig selects where remembered preferences are kept
type StorageConfig struct {
	Backend string // keyring, sqlite, memory
	Path    string // sqlite file, only used by the sqlite backend
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	RefreshInterval time.Duration
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	profile, err := userconfig.Load()
	if err != nil {
		return nil, err
	}

	// API base URL - env wins over the user's saved default
	baseURL := os.Getenv("HPA_API_BASE_URL")
	if baseURL == "" {
		baseURL = profile.APIBaseURL
	}
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}

	timeout, err := durationEnv("HPA_REQUEST_TIMEOUT", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	refreshInterval, err := durationEnv("HPA_REFRESH_INTERVAL", DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}

	storageBackend := os.Getenv("HPA_STORAGE")
	if storageBackend == "" {
		storageBackend = "keyring"
	}

	storagePath := os.Getenv("HPA_STORAGE_PATH")
	if storagePath == "" && storageBackend == "sqlite" {
		storagePath = profile.StateFile()
	}

	// Logging configuration - quiet by default for an interactive tool
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "warn"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "console"
	}

	return &Config{
		API: APIConfig{
			BaseURL: baseURL,
			Timeout: timeout,
		},
		Storage: StorageConfig{
			Backend: storageBackend,
			Path:    storagePath,
		},
		Session: SessionConfig{
			RefreshInterval: refreshInterval,
		},
		Logging: LoggingConfig{
			Level:  logLevel,
			Format: logFormat,
		},
	}, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}
