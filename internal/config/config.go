// Package config provides YAML-based configuration for the upload service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the root configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Logging    LoggingConfig    `yaml:"logging"`
	PublicBase string           `yaml:"publicBase"` // base URL embedded in presigned write URLs
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bindAddress"`
	EnableCORS   bool   `yaml:"enableCors"`
	AllowOrigins string `yaml:"allowOrigins"`
	ReadTimeout  int    `yaml:"readTimeoutSeconds"`
	WriteTimeout int    `yaml:"writeTimeoutSeconds"`
	BodyLimit    string `yaml:"bodyLimit"`
}

// StorageConfig contains object storage settings.
type StorageConfig struct {
	DataDirectory    string `yaml:"dataDirectory"`
	ObjectsDirectory string `yaml:"objectsDirectory"`
	ExportDirectory  string `yaml:"exportDirectory"`
	MaxUploadSize    string `yaml:"maxUploadSize"`
}

// IngestionConfig contains async ingestion job settings.
type IngestionConfig struct {
	AccountSampleRows      int `yaml:"accountSampleRows"`
	SlotTimeoutMinutes     int `yaml:"slotTimeoutMinutes"`
	JobRetentionMinutes    int `yaml:"jobRetentionMinutes"`
	CleanupIntervalMinutes int `yaml:"cleanupIntervalMinutes"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8086,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			BodyLimit:    "256M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			ObjectsDirectory: "./data/objects",
			ExportDirectory:  "./data/exports",
			MaxUploadSize:    "256M",
		},
		Ingestion: IngestionConfig{
			AccountSampleRows:      1000,
			SlotTimeoutMinutes:     30,
			JobRetentionMinutes:    60,
			CleanupIntervalMinutes: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		PublicBase: "http://localhost:8086",
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is
// created with defaults so the first run is self-configuring.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, output, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.ObjectsDirectory = filepath.Join(dataDir, "objects")
		c.Storage.ExportDirectory = filepath.Join(dataDir, "exports")
	}
	if base := os.Getenv("PUBLIC_BASE"); base != "" {
		c.PublicBase = base
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.ObjectsDirectory) {
		c.Storage.ObjectsDirectory = filepath.Join(configDir, c.Storage.ObjectsDirectory)
	}
	if !filepath.IsAbs(c.Storage.ExportDirectory) {
		c.Storage.ExportDirectory = filepath.Join(configDir, c.Storage.ExportDirectory)
	}
}

// GetDataDir returns the absolute data directory path.
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetObjectsDir returns the absolute objects directory path.
func (c *AppConfig) GetObjectsDir() string {
	return c.Storage.ObjectsDirectory
}

// GetExportDir returns the absolute export directory path.
func (c *AppConfig) GetExportDir() string {
	return c.Storage.ExportDirectory
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.ObjectsDirectory,
		c.Storage.ExportDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
