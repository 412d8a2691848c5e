// Package client wires the services together. Everything is constructed
// once at process start with explicit dependency injection.
package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/railfield/tracksync/internal/cache"
	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/kvstore"
	"github.com/railfield/tracksync/internal/probe"
	"github.com/railfield/tracksync/internal/queue"
	"github.com/railfield/tracksync/internal/report"
	"github.com/railfield/tracksync/internal/services/auth"
	"github.com/railfield/tracksync/internal/services/capture"
	syncsvc "github.com/railfield/tracksync/internal/services/sync"
	"github.com/railfield/tracksync/internal/transport"
)

// Client provides the high-level API for tracksync operations.
type Client struct {
	Auth    *auth.Service
	Capture *capture.Service
	Sync    *syncsvc.Service
	Report  *report.Service
	Queue   *queue.Queue
	Probe   *probe.Probe

	config    *config.Config
	logger    *events.Logger
	store     kvstore.Store
	endpoints []transport.Endpoint
}

// New creates a tracksync client from configuration.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	entryCache := cache.NewEntryCache(store, logger)
	ttl := cache.NewTTLCache(logger)
	q := queue.New(store, cfg.RequiredEndpoints(), logger)

	tokenFile := cfg.Auth.TokenFile
	if tokenFile == "" {
		tokenFile = filepath.Join(cfg.Storage.DataDir, "auth", "token.json")
	}
	if strings.HasPrefix(tokenFile, "~/") {
		homeDir, _ := os.UserHomeDir()
		tokenFile = filepath.Join(homeDir, tokenFile[2:])
	}

	authCfg := cfg.Auth
	authCfg.TokenFile = tokenFile
	if authCfg.BaseURL == "" && len(cfg.Endpoints) > 0 {
		authCfg.BaseURL = cfg.Endpoints[0].BaseURL
	}
	authService := auth.NewService(&authCfg, logger)

	endpoints := make([]transport.Endpoint, 0, len(cfg.Endpoints))
	for i := range cfg.Endpoints {
		endpoints = append(endpoints, transport.NewHTTPEndpoint(&cfg.Endpoints[i], cfg.Sync, authService, logger))
	}

	netProbe := probe.New(endpoints, cfg.Probe, logger)

	engine := syncsvc.NewEngine(
		entryCache, q, endpoints, netProbe, ttl,
		cfg.Sync.BatchSize, cfg.Sync.MaxConcurrent, cfg.Sync.MaxAttempts,
		logger,
	)

	return &Client{
		Auth:      authService,
		Capture:   capture.NewService(entryCache, q, ttl, logger),
		Sync:      syncsvc.NewService(engine, netProbe, cfg.Sync.Interval, logger),
		Report:    report.NewService(entryCache, q, ttl, cfg.Cache.DashboardTTL, logger),
		Queue:     q,
		Probe:     netProbe,
		config:    cfg,
		logger:    logger,
		store:     store,
		endpoints: endpoints,
	}, nil
}

// Config returns the active configuration.
func (c *Client) Config() *config.Config {
	return c.config
}

// Endpoints returns the configured upload targets.
func (c *Client) Endpoints() []transport.Endpoint {
	return c.endpoints
}

// Start launches the probe and background sync loops.
func (c *Client) Start(ctx context.Context) {
	c.Probe.Start(ctx)
	c.Sync.Start(ctx)
}

// Stop shuts down background loops and releases the store.
func (c *Client) Stop() error {
	c.Sync.Stop()
	c.Probe.Stop()
	return c.store.Close()
}

// openStore selects the durable backend.
func openStore(cfg *config.Config, logger *events.Logger) (kvstore.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		return kvstore.NewSQLiteStore(filepath.Join(cfg.Storage.DataDir, "tracksync.db"), logger)
	case "memory":
		return kvstore.NewMemoryStore(), nil
	case "file", "":
		return kvstore.NewFileStore(filepath.Join(cfg.Storage.DataDir, "store"), logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
