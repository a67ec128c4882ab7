/**
 * Configuration for the SIRIM capture worker
 *
 * Loads configuration from environment variables (.env is read by main
 * before LoadConfig runs).
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Image store backends
const (
	ImageStoreNone     = "none"
	ImageStoreArtifact = "artifact"
	ImageStoreGCS      = "gcs"
)

// Config holds worker configuration
type Config struct {
	// HTTP API
	HTTPAddr           string
	CORSAllowedOrigins []string

	// Local record store (Pebble directory)
	LocalStoreDir string

	// Remote store. Empty means offline-only.
	RemoteDatabaseURL string

	// Redis (sync queue, locks, events)
	RedisURL string

	// Sync scheduling
	SyncQueue       string
	SyncOwnerID     string
	SyncInterval    time.Duration
	SyncBaseBackoff time.Duration
	SyncMaxBackoff  time.Duration
	SyncMaxRetry    int
	SyncLockTTL     time.Duration
	ProbeTimeout    time.Duration

	// Image persistence
	ImageStore         string
	ArtifactAPIURL     string
	GCSBucket          string
	GCSCredentialsJSON string

	// Tesseract configuration
	TesseractLanguages []string

	// Export
	ExportTimezone string

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", nil),
		LocalStoreDir:      getEnvOrDefault("LOCAL_STORE_DIR", "/var/lib/sirim-worker/records"),
		RemoteDatabaseURL:  getEnvOrDefault("REMOTE_DATABASE_URL", ""),
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		SyncQueue:          getEnvOrDefault("SYNC_QUEUE", "sirim:sync"),
		SyncOwnerID:        getEnvOrDefault("SYNC_OWNER_ID", ""),
		SyncInterval:       getEnvAsDurationOrDefault("SYNC_INTERVAL", 15*time.Minute),
		SyncBaseBackoff:    getEnvAsDurationOrDefault("SYNC_BASE_BACKOFF", 30*time.Second),
		SyncMaxBackoff:     getEnvAsDurationOrDefault("SYNC_MAX_BACKOFF", 10*time.Minute),
		SyncMaxRetry:       getEnvAsIntOrDefault("SYNC_MAX_RETRY", 8),
		SyncLockTTL:        getEnvAsDurationOrDefault("SYNC_LOCK_TTL", 5*time.Minute),
		ProbeTimeout:       getEnvAsDurationOrDefault("PROBE_TIMEOUT", 3*time.Second),
		ImageStore:         strings.ToLower(getEnvOrDefault("IMAGE_STORE", ImageStoreNone)),
		ArtifactAPIURL:     getEnvOrDefault("ARTIFACT_API_URL", ""),
		GCSBucket:          getEnvOrDefault("GCS_BUCKET", ""),
		GCSCredentialsJSON: getEnvOrDefault("GCS_CREDENTIALS_JSON", ""),
		TesseractLanguages: getEnvAsListOrDefault("TESSERACT_LANGUAGES", []string{"eng"}),
		ExportTimezone:     getEnvOrDefault("EXPORT_TIMEZONE", "UTC"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.LocalStoreDir == "" {
		return fmt.Errorf("LOCAL_STORE_DIR is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.SyncInterval < time.Minute {
		return fmt.Errorf("SYNC_INTERVAL must be at least 1m, got %s", c.SyncInterval)
	}

	if c.SyncBaseBackoff <= 0 || c.SyncMaxBackoff < c.SyncBaseBackoff {
		return fmt.Errorf("SYNC_MAX_BACKOFF (%s) must be >= SYNC_BASE_BACKOFF (%s) > 0", c.SyncMaxBackoff, c.SyncBaseBackoff)
	}

	if c.SyncMaxRetry < 0 || c.SyncMaxRetry > 100 {
		return fmt.Errorf("SYNC_MAX_RETRY must be between 0 and 100, got %d", c.SyncMaxRetry)
	}

	if c.SyncLockTTL <= 0 {
		return fmt.Errorf("SYNC_LOCK_TTL must be positive, got %s", c.SyncLockTTL)
	}

	switch c.ImageStore {
	case ImageStoreNone:
	case ImageStoreArtifact:
		if c.ArtifactAPIURL == "" {
			return fmt.Errorf("ARTIFACT_API_URL is required when IMAGE_STORE=artifact")
		}
	case ImageStoreGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when IMAGE_STORE=gcs")
		}
	default:
		return fmt.Errorf("IMAGE_STORE must be one of none, artifact, gcs; got %q", c.ImageStore)
	}

	if _, err := time.LoadLocation(c.ExportTimezone); err != nil {
		return fmt.Errorf("EXPORT_TIMEZONE is invalid: %w", err)
	}

	return nil
}

// SyncEnabled reports whether a remote store is configured
func (c *Config) SyncEnabled() bool {
	return c.RemoteDatabaseURL != ""
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault parses values like "15m" or "30s"
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsListOrDefault splits a comma-separated variable
func getEnvAsListOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
