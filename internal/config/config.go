package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mailloft/mailloft/internal/cleaner"
	"github.com/mailloft/mailloft/internal/logging"
)

// Config is the storage engine configuration. Values come from an optional
// config file, MAILLOFT_* environment variables, and documented defaults.
type Config struct {
	Environment string `mapstructure:"environment"`

	DataDir      string `mapstructure:"data_dir"`
	DatabaseFile string `mapstructure:"database_file"`

	Cleanup struct {
		MaxAgeDays        int   `mapstructure:"max_age_days"`
		MaxTotalSizeBytes int64 `mapstructure:"max_total_size_bytes"`
		MaxOrphanAgeDays  int   `mapstructure:"max_orphan_age_days"`
	} `mapstructure:"cleanup"`

	Cache struct {
		MaxEntries   int   `mapstructure:"max_entries"`
		MaxCostBytes int64 `mapstructure:"max_cost_bytes"`
	} `mapstructure:"cache"`

	Log struct {
		Level      string `mapstructure:"level"`
		File       string `mapstructure:"file"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
	} `mapstructure:"log"`
}

// NewConfig loads the configuration from environment variables and defaults.
func NewConfig() (*Config, error) {
	return newConfig("")
}

// NewConfigFromFile loads the configuration from an explicit config file,
// with environment variables still taking precedence.
func NewConfigFromFile(path string) (*Config, error) {
	return newConfig(path)
}

func newConfig(file string) (*Config, error) {
	// In development a .env file supplies the environment, same as the
	// rest of the tooling. Missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("database_file", "")
	v.SetDefault("cleanup.max_age_days", 90)
	v.SetDefault("cleanup.max_total_size_bytes", int64(2)<<30)
	v.SetDefault("cleanup.max_orphan_age_days", 7)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.max_cost_bytes", int64(50)<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix("MAILLOFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.DatabaseFile == "" {
		config.DatabaseFile = filepath.Join(config.DataDir, "mailloft.db")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Cleanup.MaxAgeDays <= 0 {
		return fmt.Errorf("cleanup.max_age_days must be positive")
	}
	if c.Cleanup.MaxTotalSizeBytes <= 0 {
		return fmt.Errorf("cleanup.max_total_size_bytes must be positive")
	}
	if c.Cleanup.MaxOrphanAgeDays <= 0 {
		return fmt.Errorf("cleanup.max_orphan_age_days must be positive")
	}
	if c.Cache.MaxEntries <= 0 || c.Cache.MaxCostBytes <= 0 {
		return fmt.Errorf("cache limits must be positive")
	}
	return nil
}

// CleanupPolicy converts the configured limits into a cleaner policy.
func (c *Config) CleanupPolicy() cleaner.Policy {
	return cleaner.Policy{
		MaxAge:       time.Duration(c.Cleanup.MaxAgeDays) * 24 * time.Hour,
		MaxTotalSize: c.Cleanup.MaxTotalSizeBytes,
		MaxOrphanAge: time.Duration(c.Cleanup.MaxOrphanAgeDays) * 24 * time.Hour,
	}
}

// LoggingConfig converts the log section for the logging package.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Development: c.Environment == "development",
		File:        c.Log.File,
		MaxSizeMB:   c.Log.MaxSizeMB,
		MaxBackups:  c.Log.MaxBackups,
		MaxAgeDays:  c.Log.MaxAgeDays,
	}
}
