package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "tracetrip.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Load() did not create the default file: %v", err)
	}
	if time.Duration(cfg.Tracking.Interval) != 10*time.Minute {
		t.Errorf("Default tracking interval = %v, want 10m", time.Duration(cfg.Tracking.Interval))
	}
	if cfg.Ingestion.BaseURL != "" {
		t.Errorf("Default ingestion base URL should be empty (degraded mode), got %q", cfg.Ingestion.BaseURL)
	}
}

func TestLoadMergesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracetrip.yaml")
	content := `
ingestion:
  base_url: https://api.example.com
  timeout: 5s
tracking:
  interval: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Ingestion.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Ingestion.BaseURL)
	}
	if time.Duration(cfg.Tracking.Interval) != 2*time.Minute {
		t.Errorf("Interval = %v, want 2m", time.Duration(cfg.Tracking.Interval))
	}
	// Untouched sections keep their defaults
	if cfg.DB.Path == "" {
		t.Error("DB path default was lost in merge")
	}
}

func TestTokenEnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracetrip.yaml")
	if err := os.WriteFile(path, []byte("ingestion:\n  base_url: https://api.example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRACETRIP_API_TOKEN", "secret-token")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Ingestion.Token != "secret-token" {
		t.Errorf("Token = %q, want env fallback", cfg.Ingestion.Token)
	}
}
