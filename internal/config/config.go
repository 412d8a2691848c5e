package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Remote upload targets
	Endpoints []EndpointConfig `json:"endpoints"`

	// Portal authentication
	Auth AuthConfig `json:"auth"`

	// Local storage
	Storage StorageConfig `json:"storage"`

	// Sync behavior
	Sync SyncConfig `json:"sync"`

	// Reachability probing
	Probe ProbeConfig `json:"probe"`

	// Computed-value caching
	Cache CacheConfig `json:"cache"`

	// Local status API
	API APIConfig `json:"api"`

	// Logging
	Log LogConfig `json:"log"`
}

// EndpointConfig describes one remote upload target.
type EndpointConfig struct {
	Name       string        `json:"name"`
	BaseURL    string        `json:"base_url"`
	Required   bool          `json:"required"`    // Acknowledgment mandatory before an entry counts as synced
	Timeout    time.Duration `json:"timeout"`     // Per-attempt upload timeout
	MaxRetries int           `json:"max_retries"` // In-call transient retries
	UserAgent  string        `json:"user_agent"`
}

// AuthConfig for portal authentication.
type AuthConfig struct {
	BaseURL   string `json:"base_url"` // Login endpoint; defaults to the first configured endpoint
	Email     string `json:"email,omitempty"`
	Password  string `json:"password,omitempty"`
	TokenFile string `json:"token_file"`
}

// StorageConfig for the local key-value store.
type StorageConfig struct {
	DataDir string `json:"data_dir"`
	Backend string `json:"backend"` // file, sqlite, memory
}

// SyncConfig for synchronizer behavior.
type SyncConfig struct {
	BatchSize     int           `json:"batch_size"`     // Entries drained per cycle
	MaxConcurrent int           `json:"max_concurrent"` // Entries in flight at once
	MaxAttempts   int           `json:"max_attempts"`   // Attempt cycles before terminal failure
	RetryBase     time.Duration `json:"retry_base"`     // Initial backoff delay
	RetryCap      time.Duration `json:"retry_cap"`      // Backoff ceiling
	Interval      time.Duration `json:"interval"`       // Background cycle period in watch mode
}

// ProbeConfig for the reachability probe.
type ProbeConfig struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// CacheConfig for TTL-cached aggregates.
type CacheConfig struct {
	DashboardTTL time.Duration `json:"dashboard_ttl"`
}

// APIConfig for the local status server.
type APIConfig struct {
	Listen string `json:"listen"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	File       string `json:"file"`        // Log file path (empty = stdout)
	MaxSize    int    `json:"max_size"`    // Max log file size in MB
	MaxBackups int    `json:"max_backups"` // Max number of old logs
	MaxAge     int    `json:"max_age"`     // Max age in days
	Color      bool   `json:"color"`       // Enable colored output
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".tracksync"

	return &Config{
		Endpoints: []EndpointConfig{
			{
				Name:       "inventory",
				BaseURL:    "https://inventory.railfield.example",
				Required:   true,
				Timeout:    10 * time.Second,
				MaxRetries: 2,
				UserAgent:  "tracksync/1.0",
			},
			{
				Name:       "inspection",
				BaseURL:    "https://inspection.railfield.example",
				Required:   true,
				Timeout:    10 * time.Second,
				MaxRetries: 2,
				UserAgent:  "tracksync/1.0",
			},
		},
		Auth: AuthConfig{
			TokenFile: filepath.Join(dataDir, "auth", "token.json"),
		},
		Storage: StorageConfig{
			DataDir: dataDir,
			Backend: "file",
		},
		Sync: SyncConfig{
			BatchSize:     25,
			MaxConcurrent: 4,
			MaxAttempts:   5,
			RetryBase:     time.Second,
			RetryCap:      60 * time.Second,
			Interval:      30 * time.Second,
		},
		Probe: ProbeConfig{
			Interval: 5 * time.Second,
			Timeout:  3 * time.Second,
		},
		Cache: CacheConfig{
			DashboardTTL: 5 * time.Minute,
		},
		API: APIConfig{
			Listen: "127.0.0.1:7420",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Color:      true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}

	names := make(map[string]bool, len(c.Endpoints))
	required := 0
	for _, ep := range c.Endpoints {
		if ep.Name == "" {
			return errors.New("endpoint name is required")
		}
		if names[ep.Name] {
			return fmt.Errorf("duplicate endpoint name: %s", ep.Name)
		}
		names[ep.Name] = true

		if ep.BaseURL == "" {
			return fmt.Errorf("endpoint %s: base_url is required", ep.Name)
		}
		if ep.Timeout <= 0 {
			return fmt.Errorf("endpoint %s: timeout must be positive", ep.Name)
		}
		if ep.Required {
			required++
		}
	}
	if required == 0 {
		return errors.New("at least one endpoint must be required")
	}

	switch c.Storage.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage backend: %s", c.Storage.Backend)
	}

	if c.Sync.BatchSize <= 0 {
		return errors.New("sync.batch_size must be positive")
	}
	if c.Sync.MaxConcurrent <= 0 {
		return errors.New("sync.max_concurrent must be positive")
	}
	if c.Sync.MaxAttempts <= 0 {
		return errors.New("sync.max_attempts must be positive")
	}
	if c.Sync.RetryBase <= 0 || c.Sync.RetryCap < c.Sync.RetryBase {
		return errors.New("sync retry delays must be positive with cap >= base")
	}

	if c.Probe.Interval <= 0 {
		return errors.New("probe.interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// RequiredEndpoints returns the names of endpoints whose acknowledgment
// is mandatory for an entry to count as synced.
func (c *Config) RequiredEndpoints() []string {
	var names []string
	for _, ep := range c.Endpoints {
		if ep.Required {
			names = append(names, ep.Name)
		}
	}
	return names
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		filepath.Dir(c.Auth.TokenFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
