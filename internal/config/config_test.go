package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railfield/tracksync/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, []string{"inventory", "inspection"}, cfg.RequiredEndpoints())
	assert.Equal(t, 5*time.Second, cfg.Probe.Interval)
	assert.Equal(t, time.Second, cfg.Sync.RetryBase)
	assert.Equal(t, 60*time.Second, cfg.Sync.RetryCap)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no endpoints", func(c *config.Config) { c.Endpoints = nil }},
		{"duplicate endpoint names", func(c *config.Config) { c.Endpoints[1].Name = c.Endpoints[0].Name }},
		{"missing base url", func(c *config.Config) { c.Endpoints[0].BaseURL = "" }},
		{"no required endpoint", func(c *config.Config) {
			for i := range c.Endpoints {
				c.Endpoints[i].Required = false
			}
		}},
		{"bad backend", func(c *config.Config) { c.Storage.Backend = "postgres" }},
		{"zero batch size", func(c *config.Config) { c.Sync.BatchSize = 0 }},
		{"cap below base", func(c *config.Config) { c.Sync.RetryCap = c.Sync.RetryBase / 2 }},
		{"bad log level", func(c *config.Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoaderFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracksync.json")

	fileCfg := config.DefaultConfig()
	fileCfg.Sync.BatchSize = 10
	fileCfg.Log.Level = "debug"
	data, err := json.Marshal(fileCfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	t.Setenv("TRACKSYNC_SYNC_BATCH_SIZE", "7")
	t.Setenv("TRACKSYNC_LOG_FORMAT", "json")

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	// Env beats file, file beats defaults.
	assert.Equal(t, 7, cfg.Sync.BatchSize)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoaderRejectsInvalidEnv(t *testing.T) {
	t.Setenv("TRACKSYNC_SYNC_BATCH_SIZE", "many")

	_, err := config.NewLoader("").Load()
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Auth.TokenFile = filepath.Join(dir, "data", "auth", "token.json")
	cfg.Log.File = filepath.Join(dir, "logs", "tracksync.log")

	require.NoError(t, cfg.EnsureDirectories())

	for _, p := range []string{cfg.Storage.DataDir, filepath.Dir(cfg.Auth.TokenFile), filepath.Dir(cfg.Log.File)} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
