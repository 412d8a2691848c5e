// Package capture is the write path the UI calls when a worker records
// something in the field. Every operation completes locally: entries are
// validated, cached, and queued without touching the network, so capture
// works identically in a tunnel and in the yard office.
package capture

import (
	"context"
	"fmt"

	"github.com/railfield/tracksync/internal/cache"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/qr"
	"github.com/railfield/tracksync/internal/queue"
)

// Service records tracking entries.
type Service struct {
	entries *cache.EntryCache
	queue   *queue.Queue
	ttl     *cache.TTLCache
	logger  *events.Logger
}

// NewService creates a capture service.
func NewService(entries *cache.EntryCache, q *queue.Queue, ttl *cache.TTLCache, logger *events.Logger) *Service {
	return &Service{
		entries: entries,
		queue:   q,
		ttl:     ttl,
		logger:  logger.WithField("service", "capture"),
	}
}

// CaptureScan records a fitting sighting from a scanned tag payload.
func (s *Service) CaptureScan(ctx context.Context, payload string, location string) (*models.TrackingEntry, error) {
	tag, err := qr.Parse(payload)
	if err != nil {
		return nil, err
	}

	entry := models.NewEntry(models.KindScan, tag.SubjectID, models.Payload{
		Location: location,
		Metadata: map[string]string{
			"fitting_type": tag.FittingType,
			"zone":         tag.Zone,
		},
	})

	return entry, s.record(ctx, entry)
}

// CaptureInspection records an inspection verdict for a fitting.
func (s *Service) CaptureInspection(ctx context.Context, subjectID, condition, notes string) (*models.TrackingEntry, error) {
	entry := models.NewEntry(models.KindInspection, subjectID, models.Payload{
		Condition: condition,
		Notes:     notes,
	})

	return entry, s.record(ctx, entry)
}

// CaptureMovement records a fitting being moved to a new location.
func (s *Service) CaptureMovement(ctx context.Context, subjectID, location, notes string) (*models.TrackingEntry, error) {
	entry := models.NewEntry(models.KindMovement, subjectID, models.Payload{
		Location: location,
		Notes:    notes,
	})

	return entry, s.record(ctx, entry)
}

// record validates an entry, persists it, and queues it for sync. A
// storage fault degrades durability but does not fail the capture.
func (s *Service) record(ctx context.Context, entry *models.TrackingEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	logger := events.FromContext(ctx).WithFields(map[string]interface{}{
		"entry_id": entry.ID,
		"kind":     string(entry.Kind),
	})

	if err := s.entries.Put(entry); err != nil {
		return fmt.Errorf("cache entry: %w", err)
	}

	if err := s.queue.Enqueue(entry); err != nil {
		return fmt.Errorf("enqueue entry: %w", err)
	}

	s.ttl.Invalidate("dashboard")
	logger.Info("Captured entry")
	return nil
}

// Get returns a captured entry by ID.
func (s *Service) Get(id string) (*models.TrackingEntry, error) {
	return s.entries.Get(id)
}

// List returns all captured entries, newest first.
func (s *Service) List() []*models.TrackingEntry {
	return s.entries.ListAll()
}

// Pending reports how many entries are still awaiting sync.
func (s *Service) Pending() int {
	return s.queue.Len()
}

// Discard drops one entry from both the queue and the cache. Used to
// clear an entry the remote has terminally rejected.
func (s *Service) Discard(id string) error {
	if _, err := s.entries.Get(id); err != nil {
		return err
	}

	if err := s.queue.Discard(id); err != nil {
		return fmt.Errorf("discard from queue: %w", err)
	}
	if err := s.entries.Remove(id); err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}

	s.ttl.Invalidate("dashboard")
	s.logger.WithField("entry_id", id).Info("Discarded entry")
	return nil
}

// ClearAll wipes every captured entry and the sync queue. Explicit user
// action only.
func (s *Service) ClearAll() error {
	if err := s.queue.Clear(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := s.entries.Clear(); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}

	s.ttl.Invalidate("dashboard")
	s.logger.Info("Cleared all entries")
	return nil
}
