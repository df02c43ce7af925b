// Package config loads service configuration from the environment once at
// startup. Components receive the values they need explicitly; nothing else
// reads environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend identifiers accepted in STORAGE_BACKEND.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	// HTTP server
	Port string

	// Backend selection
	StorageBackend string

	// SQLite (local development)
	SQLiteDBPath string

	// Firestore (production)
	FirestoreProjectID  string
	FirestoreDatabase   string
	FirestoreCollection string

	// Mapping oracle
	GeminiAPIKey  string
	GeminiModel   string
	OracleTimeout time.Duration

	// Upload backup
	GCSBucket string

	// Upload limits
	MaxUploadBytes int64
}

// Load reads configuration from the environment. A .env file at envFile is
// loaded first when present; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendSQLite)),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/expenses.db"),

		FirestoreProjectID:  getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreDatabase:   getEnv("FIRESTORE_DATABASE", "(default)"),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "expenses"),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OracleTimeout: getEnvDuration("ORACLE_TIMEOUT", 30*time.Second),

		GCSBucket: getEnv("GCS_BUCKET", ""),

		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration for inconsistencies.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("config: invalid port %q", c.Port)
	}

	switch c.StorageBackend {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("config: SQLITE_DB_PATH is required for the sqlite backend")
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("config: FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	default:
		return fmt.Errorf("config: invalid storage backend %q (want %q or %q)",
			c.StorageBackend, BackendSQLite, BackendFirestore)
	}

	if c.OracleTimeout <= 0 {
		return fmt.Errorf("config: oracle timeout must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: max upload size must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
