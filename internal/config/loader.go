package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"storagecore/internal/core"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "storagecore.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/storagecore"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/storagecore/config.yaml)
// 3. Project config (storagecore.yaml in current or parent directories)
// 4. STORAGECORE_* environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	userConfigPath := l.userConfigPath()
	if userConfig, err := LoadFromFile(userConfigPath); err == nil {
		l.logger.Debug("loaded user config", slog.String("path", userConfigPath))
		config.Merge(userConfig)
	} else if !os.IsNotExist(err) {
		l.logger.Warn("failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath != "" {
		if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
			l.logger.Debug("loaded project config", slog.String("path", projectConfigPath))
			config.Merge(projectConfig)
		} else {
			l.logger.Warn("failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if missing.
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}
	config := DefaultConfig()
	if err := config.SaveToFile(userConfigPath); err != nil {
		return err
	}
	l.logger.Info("created default user config", slog.String("path", userConfigPath))
	return nil
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for storagecore.yaml in current and parent
// directories.
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// applyEnv overlays STORAGECORE_* environment variables, the final layer.
func applyEnv(c *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Storage.Driver, "STORAGECORE_STORAGE_DRIVER")
	set(&c.Storage.SQLitePath, "STORAGECORE_SQLITE_PATH")
	set(&c.Storage.PostgresDSN, "STORAGECORE_POSTGRES_DSN")
	set(&c.Blob.Driver, "STORAGECORE_BLOB_DRIVER")
	set(&c.Blob.FSRoot, "STORAGECORE_BLOB_FS_ROOT")
	set(&c.Blob.S3Bucket, "STORAGECORE_BLOB_S3_BUCKET")
	set(&c.Blob.S3Region, "STORAGECORE_BLOB_S3_REGION")
	set(&c.Blob.S3Endpoint, "STORAGECORE_BLOB_S3_ENDPOINT")
	if v := os.Getenv("STORAGECORE_BLOB_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Blob.S3PathStyle = b
		}
	}
	set(&c.Logging.Level, "STORAGECORE_LOG_LEVEL")
	set(&c.Logging.Format, "STORAGECORE_LOG_FORMAT")
}

// ServicePolicy converts the picker settings to a service policy.
func (c *Config) ServicePolicy() core.Policy {
	policy := core.DefaultPolicy()
	if c.Picker.StalenessWorkdays > 0 {
		policy.StalenessWorkdays = c.Picker.StalenessWorkdays
	}
	if c.Picker.CapacityPageSize > 0 {
		policy.CapacityPageSize = c.Picker.CapacityPageSize
	}
	return policy
}

// NewLogger builds a slog logger from the logging settings.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
