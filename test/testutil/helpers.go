// Package testutil holds shared fixtures for integration tests.
package testutil

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/qr"
)

// NewTestLogger creates a logger for testing.
func NewTestLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.ErrorLevel, "json", &buf)
}

// TestConfig returns a config suited to tests: memory store, short
// timers, endpoints pointed at the given base URLs.
func TestConfig(dataDir string, endpointURLs map[string]string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = dataDir
	cfg.Storage.Backend = "memory"
	cfg.Auth.TokenFile = ""
	cfg.Sync.RetryBase = 10 * time.Millisecond
	cfg.Sync.RetryCap = 50 * time.Millisecond
	cfg.Sync.Interval = time.Hour
	cfg.Probe.Interval = time.Hour
	cfg.Probe.Timeout = time.Second

	cfg.Endpoints = nil
	for name, url := range endpointURLs {
		cfg.Endpoints = append(cfg.Endpoints, config.EndpointConfig{
			Name:       name,
			BaseURL:    url,
			Required:   true,
			Timeout:    time.Second,
			MaxRetries: 1,
			UserAgent:  "tracksync-test",
		})
	}

	return cfg
}

// ScanPayload builds a valid tag payload for a fresh subject.
func ScanPayload() string {
	return qr.Encode(&qr.Tag{
		SubjectID:   uuid.NewString(),
		FittingType: "CLIP",
		Zone:        "ZN-01",
		Version:     1,
	})
}

// MovementEntry builds a valid pending movement entry.
func MovementEntry(location string) *models.TrackingEntry {
	return models.NewEntry(models.KindMovement, uuid.NewString(), models.Payload{
		Location: location,
	})
}

// InspectionEntry builds a valid pending inspection entry.
func InspectionEntry(condition string) *models.TrackingEntry {
	return models.NewEntry(models.KindInspection, uuid.NewString(), models.Payload{
		Condition: condition,
	})
}
