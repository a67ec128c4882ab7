package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "")
	t.Setenv("IMAGE_STORE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SyncInterval != 15*time.Minute || cfg.SyncBaseBackoff != 30*time.Second {
		t.Fatalf("sync timing = %s / %s", cfg.SyncInterval, cfg.SyncBaseBackoff)
	}
	if cfg.SyncQueue != "sirim:sync" || cfg.ImageStore != ImageStoreNone {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.TesseractLanguages) != 1 || cfg.TesseractLanguages[0] != "eng" {
		t.Fatalf("languages = %v", cfg.TesseractLanguages)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("SYNC_MAX_RETRY", "3")
	t.Setenv("TESSERACT_LANGUAGES", "eng, msa ,")
	t.Setenv("IMAGE_STORE", "GCS")
	t.Setenv("GCS_BUCKET", "labels")
	t.Setenv("REMOTE_DATABASE_URL", "postgres://localhost/sirim")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.SyncInterval != 30*time.Minute || cfg.SyncMaxRetry != 3 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.TesseractLanguages) != 2 || cfg.TesseractLanguages[1] != "msa" {
		t.Fatalf("languages = %v", cfg.TesseractLanguages)
	}
	if cfg.ImageStore != ImageStoreGCS || !cfg.SyncEnabled() {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"short interval":       {"SYNC_INTERVAL": "10s"},
		"backoff order":        {"SYNC_BASE_BACKOFF": "5m", "SYNC_MAX_BACKOFF": "1m"},
		"artifact without url": {"IMAGE_STORE": "artifact", "ARTIFACT_API_URL": ""},
		"unknown image store":  {"IMAGE_STORE": "s3"},
		"bad timezone":         {"EXPORT_TIMEZONE": "Mars/Olympus"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadConfig_RejectsUnknownExportTimezone(t *testing.T) {
	t.Setenv("EXPORT_TIMEZONE", "Asia/Atlantis")
	_, err := LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "EXPORT_TIMEZONE") {
		t.Fatalf("err = %v, want EXPORT_TIMEZONE rejection", err)
	}
}
