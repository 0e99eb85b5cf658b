package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8086 {
		t.Errorf("expected default port 8086, got %d", cfg.Server.Port)
	}
	if cfg.Ingestion.AccountSampleRows != 1000 {
		t.Errorf("expected account sample cap 1000, got %d", cfg.Ingestion.AccountSampleRows)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_CreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetflow.yaml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if cfg.Server.Port != 8086 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
	if !filepath.IsAbs(cfg.Storage.ObjectsDirectory) {
		t.Errorf("expected objects dir to be resolved absolute, got %s", cfg.Storage.ObjectsDirectory)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetflow.yaml")

	content := []byte("server:\n  port: 9191\nlogging:\n  level: debug\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("expected port 9191 from file, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug from file, got %s", cfg.Logging.Level)
	}
	// Unset fields keep defaults.
	if cfg.Ingestion.AccountSampleRows != 1000 {
		t.Errorf("expected default sample cap, got %d", cfg.Ingestion.AccountSampleRows)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetflow.yaml")

	t.Setenv("PORT", "7070")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected PORT override 7070, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected LOG_LEVEL override warn, got %s", cfg.Logging.Level)
	}
}
