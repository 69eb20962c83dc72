package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "./data", config.DataDir)
	assert.Equal(t, filepath.Join("./data", "mailloft.db"), config.DatabaseFile)

	assert.Equal(t, 90, config.Cleanup.MaxAgeDays)
	assert.Equal(t, int64(2)<<30, config.Cleanup.MaxTotalSizeBytes)
	assert.Equal(t, 7, config.Cleanup.MaxOrphanAgeDays)

	assert.Equal(t, 100, config.Cache.MaxEntries)
	assert.Equal(t, int64(50)<<20, config.Cache.MaxCostBytes)

	assert.Equal(t, "info", config.Log.Level)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("MAILLOFT_DATA_DIR", "/var/lib/mailloft")
	t.Setenv("MAILLOFT_CLEANUP_MAX_AGE_DAYS", "30")

	config, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/mailloft", config.DataDir)
	assert.Equal(t, 30, config.Cleanup.MaxAgeDays)
	assert.Equal(t, filepath.Join("/var/lib/mailloft", "mailloft.db"), config.DatabaseFile)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /srv/mail
cleanup:
  max_age_days: 14
cache:
  max_entries: 5
`), 0o644))

	config, err := NewConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/mail", config.DataDir)
	assert.Equal(t, 14, config.Cleanup.MaxAgeDays)
	assert.Equal(t, 5, config.Cache.MaxEntries)
	// Unset keys keep their defaults.
	assert.Equal(t, 7, config.Cleanup.MaxOrphanAgeDays)
}

func TestConfigFileMissing(t *testing.T) {
	_, err := NewConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		config, err := NewConfig()
		require.NoError(t, err)
		return config
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero max age", func(c *Config) { c.Cleanup.MaxAgeDays = 0 }},
		{"negative total size", func(c *Config) { c.Cleanup.MaxTotalSizeBytes = -1 }},
		{"zero orphan age", func(c *Config) { c.Cleanup.MaxOrphanAgeDays = 0 }},
		{"zero cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"zero cache cost", func(c *Config) { c.Cache.MaxCostBytes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestCleanupPolicy(t *testing.T) {
	config, err := NewConfig()
	require.NoError(t, err)

	policy := config.CleanupPolicy()
	assert.Equal(t, 90*24*time.Hour, policy.MaxAge)
	assert.Equal(t, int64(2)<<30, policy.MaxTotalSize)
	assert.Equal(t, 7*24*time.Hour, policy.MaxOrphanAge)
}
