package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railfield/tracksync/internal/cache"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/probe"
	"github.com/railfield/tracksync/internal/queue"
	"github.com/railfield/tracksync/internal/transport"
)

// Engine drives one synchronization cycle: drain pending queue items in
// FIFO order and push each entry to every configured endpoint.
type Engine struct {
	entries   *cache.EntryCache
	queue     *queue.Queue
	endpoints []transport.Endpoint
	probe     *probe.Probe
	ttl       *cache.TTLCache
	logger    *events.Logger

	// Configuration
	batchSize     int
	maxConcurrent int
	maxAttempts   int

	// Progress tracking
	progress atomic.Value // *Progress
	events   chan Event

	// Cycle state
	mu       sync.Mutex
	syncing  bool
	cancelFn context.CancelFunc
}

// Progress tracks one cycle's counters.
type Progress struct {
	Phase     string
	Total     int
	Processed int
	Synced    int
	Partial   int
	Failed    int
	StartTime time.Time
	Errors    []error
}

// Event represents a synchronizer event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	EntryID   string
	Endpoint  string
	Error     error
	Progress  *Progress
}

// EventType defines synchronizer event types.
type EventType string

const (
	EventStarted      EventType = "started"
	EventEntrySynced  EventType = "entry_synced"
	EventEntryPartial EventType = "entry_partial"
	EventEntryFailed  EventType = "entry_failed"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
)

// NewEngine creates a synchronizer engine.
func NewEngine(
	entries *cache.EntryCache,
	q *queue.Queue,
	endpoints []transport.Endpoint,
	netProbe *probe.Probe,
	ttl *cache.TTLCache,
	batchSize, maxConcurrent, maxAttempts int,
	logger *events.Logger,
) *Engine {
	return &Engine{
		entries:       entries,
		queue:         q,
		endpoints:     endpoints,
		probe:         netProbe,
		ttl:           ttl,
		logger:        logger.WithField("component", "sync_engine"),
		batchSize:     batchSize,
		maxConcurrent: maxConcurrent,
		maxAttempts:   maxAttempts,
		events:        make(chan Event, 100),
	}
}

// Events returns the event channel. The channel stays open across
// cycles; EventCompleted and EventFailed mark cycle boundaries.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Syncing reports whether a cycle is currently running.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// GetProgress returns the most recent cycle progress. The returned
// snapshot is immutable; the engine never writes to a published Progress.
func (e *Engine) GetProgress() *Progress {
	if p := e.progress.Load(); p != nil {
		return p.(*Progress)
	}
	return nil
}

// storeProgress publishes an immutable snapshot of p, cloning the Errors
// slice so later appends cannot alias a snapshot a reader holds.
func (e *Engine) storeProgress(p Progress) *Progress {
	snap := p
	snap.Errors = append([]error(nil), p.Errors...)
	e.progress.Store(&snap)
	return &snap
}

// SyncOnce runs a single cycle. It returns models.ErrOffline without
// touching the queue when the probe reports no reachable endpoint, and
// models.ErrSyncInProgress when a cycle is already running.
func (e *Engine) SyncOnce(ctx context.Context) error {
	if e.probe != nil && !e.probe.Online() {
		return models.ErrOffline
	}

	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return models.ErrSyncInProgress
	}
	e.syncing = true

	ctx, cancel := context.WithCancel(ctx)
	e.cancelFn = cancel
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.syncing = false
		e.cancelFn = nil
		e.mu.Unlock()
	}()

	batch := e.queue.DequeueBatch(e.batchSize)

	progress := Progress{
		Phase:     "uploading",
		Total:     len(batch),
		StartTime: time.Now(),
	}
	started := e.storeProgress(progress)

	e.logger.WithField("batch", len(batch)).Info("Starting sync cycle")
	e.emitEvent(Event{Type: EventStarted, Timestamp: time.Now(), Progress: started})

	var (
		progressMu sync.Mutex
		wg         sync.WaitGroup
		sem        = make(chan struct{}, e.maxConcurrent)
	)

	for _, item := range batch {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(item *queue.Item) {
				defer wg.Done()
				defer func() { <-sem }()

				outcome := e.processItem(ctx, item)

				progressMu.Lock()
				progress.Processed++
				switch outcome.event {
				case EventEntrySynced:
					progress.Synced++
				case EventEntryPartial:
					progress.Partial++
				case EventEntryFailed:
					progress.Failed++
				}
				if outcome.err != nil {
					progress.Errors = append(progress.Errors, outcome.err)
				}
				e.storeProgress(progress)
				progressMu.Unlock()
			}(item)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		e.emitEvent(Event{Type: EventFailed, Timestamp: time.Now(), Error: err, Progress: e.GetProgress()})
		e.logger.WithError(err).Warn("Sync cycle cancelled")
		return err
	}

	progress.Phase = "completed"
	completed := e.storeProgress(progress)
	e.emitEvent(Event{Type: EventCompleted, Timestamp: time.Now(), Progress: completed})

	if completed.Synced > 0 || completed.Failed > 0 {
		e.ttl.Invalidate("dashboard")
	}

	e.logger.WithFields(map[string]interface{}{
		"duration": time.Since(completed.StartTime),
		"synced":   completed.Synced,
		"partial":  completed.Partial,
		"failed":   completed.Failed,
	}).Info("Sync cycle completed")

	return nil
}

// Cancel stops an ongoing cycle. Cancellation is cooperative: uploads
// stop at the next endpoint-call boundary, never mid-request.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelFn != nil {
		e.logger.Info("Cancelling sync")
		e.cancelFn()
	}
}

type itemOutcome struct {
	event EventType
	err   error
}

// processItem pushes one entry to every endpoint that has not yet
// acknowledged it. Endpoints are attempted independently and strictly in
// sequence for a given entry.
func (e *Engine) processItem(ctx context.Context, item *queue.Item) itemOutcome {
	logger := e.logger.WithField("entry_id", item.EntryID)

	entry, err := e.entries.Get(item.EntryID)
	if err != nil {
		// A queue reference without a backing entry is unrecoverable.
		logger.WithError(err).Warn("Queued entry missing from cache, discarding")
		if derr := e.queue.Discard(item.EntryID); derr != nil {
			logger.WithError(derr).Warn("Failed to discard orphaned queue item")
		}
		return itemOutcome{event: EventEntryFailed, err: err}
	}

	for _, endpoint := range e.endpoints {
		if item.SucceededOn(endpoint.Name()) {
			continue
		}

		select {
		case <-ctx.Done():
			return itemOutcome{err: ctx.Err()}
		default:
		}

		result, upErr := endpoint.Upload(ctx, entry)
		if upErr == nil {
			item.Results[endpoint.Name()] = queue.Result{Success: true, ServerID: result.ServerID, At: time.Now().UTC()}
			if err := e.queue.MarkResult(item.EntryID, endpoint.Name(), item.Results[endpoint.Name()]); err != nil {
				logger.WithError(err).Warn("Failed to record upload result")
			}
			continue
		}

		if mrkErr := e.queue.MarkResult(item.EntryID, endpoint.Name(), queue.Result{
			Success: false,
			Error:   upErr.Error(),
			At:      time.Now().UTC(),
		}); mrkErr != nil {
			logger.WithError(mrkErr).Warn("Failed to record upload result")
		}

		if models.IsRejection(upErr) {
			// The remote has durably refused this entry. Retrying cannot
			// help, so the entry goes terminal immediately.
			return e.failEntry(entry, item, fmt.Sprintf("%s rejected entry: %v", endpoint.Name(), upErr), upErr)
		}

		logger.WithError(upErr).WithField("endpoint", endpoint.Name()).Warn("Upload failed")
	}

	if err := e.queue.BumpAttempt(item.EntryID); err != nil {
		logger.WithError(err).Warn("Failed to bump attempt counter")
	}

	done, err := e.queue.Complete(item.EntryID)
	if err != nil {
		logger.WithError(err).Warn("Failed to complete queue item")
	}
	if done {
		entry.MarkSynced()
		if err := e.entries.Put(entry); err != nil {
			logger.WithError(err).Warn("Failed to persist synced state")
		}
		e.emitEvent(Event{Type: EventEntrySynced, Timestamp: time.Now(), EntryID: entry.ID})
		logger.Info("Entry synced")
		return itemOutcome{event: EventEntrySynced}
	}

	current, ok := e.queue.Get(item.EntryID)
	if !ok {
		// Discarded concurrently.
		return itemOutcome{}
	}

	if current.Attempts >= e.maxAttempts {
		return e.failEntry(entry, item, fmt.Sprintf("gave up after %d attempts: %s", current.Attempts, current.LastError), nil)
	}

	if current.Partial() {
		e.emitEvent(Event{Type: EventEntryPartial, Timestamp: time.Now(), EntryID: entry.ID})
		logger.Info("Entry partially synced, will retry")
		return itemOutcome{event: EventEntryPartial}
	}

	logger.Info("Entry still pending, will retry")
	return itemOutcome{}
}

// failEntry marks an entry terminally failed in both queue and cache.
// The item stays visible until the user discards it.
func (e *Engine) failEntry(entry *models.TrackingEntry, item *queue.Item, reason string, cause error) itemOutcome {
	if err := e.queue.MarkTerminal(item.EntryID, reason); err != nil {
		e.logger.WithError(err).WithField("entry_id", item.EntryID).Warn("Failed to mark item terminal")
	}

	entry.MarkFailed(reason)
	if err := e.entries.Put(entry); err != nil {
		e.logger.WithError(err).WithField("entry_id", item.EntryID).Warn("Failed to persist failed state")
	}

	e.emitEvent(Event{Type: EventEntryFailed, Timestamp: time.Now(), EntryID: entry.ID, Error: cause})
	e.logger.WithField("entry_id", entry.ID).WithField("reason", reason).Warn("Entry failed terminally")
	return itemOutcome{event: EventEntryFailed, err: cause}
}

// emitEvent sends an event without blocking. Slow consumers drop events
// rather than stall uploads.
func (e *Engine) emitEvent(event Event) {
	select {
	case e.events <- event:
	default:
		e.logger.WithField("type", string(event.Type)).Debug("Event channel full, dropping event")
	}
}
