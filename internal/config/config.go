// Package config provides configuration loading for storagecore tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete storagecore configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Blob    BlobConfig    `yaml:"blob"`
	Picker  PickerConfig  `yaml:"picker"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is sqlite, postgres or memory (default: sqlite)
	Driver string `yaml:"driver"`
	// SQLitePath is the database file when driver=sqlite
	SQLitePath string `yaml:"sqlite_path"`
	// PostgresDSN is the connection string when driver=postgres
	PostgresDSN string `yaml:"postgres_dsn"`
}

// BlobConfig selects and configures the worksheet archive backend.
type BlobConfig struct {
	// Driver is fs, s3 or memory (default: fs)
	Driver string `yaml:"driver"`
	// FSRoot is the archive directory when driver=fs
	FSRoot string `yaml:"fs_root"`
	// S3 settings apply when driver=s3
	S3Bucket    string `yaml:"s3_bucket"`
	S3Region    string `yaml:"s3_region"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PickerConfig tunes check-in and pick-list behavior.
type PickerConfig struct {
	// StalenessWorkdays is how many working days an in-place scan stays
	// trusted before rack check-in warns (default: 2)
	StalenessWorkdays int `yaml:"staleness_workdays"`
	// CapacityPageSize caps capacity search results per request (default: 500)
	CapacityPageSize int `yaml:"capacity_page_size"`
	// ArchivePrefix prefixes worksheet archive keys (default: picklists)
	ArchivePrefix string `yaml:"archive_prefix"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: info)
	Level string `yaml:"level"`
	// Format is text or json (default: text)
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "storagecore.db",
		},
		Blob: BlobConfig{
			Driver: "fs",
			FSRoot: "./worksheets",
		},
		Picker: PickerConfig{
			StalenessWorkdays: 2,
			CapacityPageSize:  500,
			ArchivePrefix:     "picklists",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite, postgres or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
	}
	switch c.Blob.Driver {
	case "fs", "s3", "memory":
	default:
		return fmt.Errorf("blob.driver must be fs, s3 or memory, got %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3Bucket == "" {
		return fmt.Errorf("blob.s3_bucket is required for the s3 driver")
	}
	if c.Picker.StalenessWorkdays < 0 {
		return fmt.Errorf("picker.staleness_workdays must not be negative")
	}
	if c.Picker.CapacityPageSize <= 0 {
		return fmt.Errorf("picker.capacity_page_size must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one; non-zero values of other take
// precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Storage.Driver != "" {
		c.Storage.Driver = other.Storage.Driver
	}
	if other.Storage.SQLitePath != "" {
		c.Storage.SQLitePath = other.Storage.SQLitePath
	}
	if other.Storage.PostgresDSN != "" {
		c.Storage.PostgresDSN = other.Storage.PostgresDSN
	}
	if other.Blob.Driver != "" {
		c.Blob.Driver = other.Blob.Driver
	}
	if other.Blob.FSRoot != "" {
		c.Blob.FSRoot = other.Blob.FSRoot
	}
	if other.Blob.S3Bucket != "" {
		c.Blob.S3Bucket = other.Blob.S3Bucket
	}
	if other.Blob.S3Region != "" {
		c.Blob.S3Region = other.Blob.S3Region
	}
	if other.Blob.S3Endpoint != "" {
		c.Blob.S3Endpoint = other.Blob.S3Endpoint
		c.Blob.S3PathStyle = other.Blob.S3PathStyle
	}
	if other.Picker.StalenessWorkdays != 0 {
		c.Picker.StalenessWorkdays = other.Picker.StalenessWorkdays
	}
	if other.Picker.CapacityPageSize != 0 {
		c.Picker.CapacityPageSize = other.Picker.CapacityPageSize
	}
	if other.Picker.ArchivePrefix != "" {
		c.Picker.ArchivePrefix = other.Picker.ArchivePrefix
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
}
