package queue

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/kvstore"
	"github.com/railfield/tracksync/internal/models"
)

// QueuePrefix is the key namespace for durable queue membership.
const QueuePrefix = "queue/"

// Result records the outcome of one upload attempt against one endpoint.
type Result struct {
	Success  bool      `json:"success"`
	ServerID string    `json:"server_id,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Item is one queued entry reference with per-endpoint bookkeeping.
// The queue holds identifiers only; payload bytes stay in the entry
// records owned by the durable store.
type Item struct {
	EntryID    string            `json:"entry_id"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
	Attempts   int               `json:"attempts"`
	Results    map[string]Result `json:"results"`
	Terminal   bool              `json:"terminal"`
	LastError  string            `json:"last_error,omitempty"`
}

// SucceededOn reports whether endpoint has a recorded success.
func (it *Item) SucceededOn(endpoint string) bool {
	res, ok := it.Results[endpoint]
	return ok && res.Success
}

// Partial reports whether some but not all work is done: at least one
// endpoint success recorded and the item is still queued.
func (it *Item) Partial() bool {
	if it.Terminal {
		return false
	}
	for _, res := range it.Results {
		if res.Success {
			return true
		}
	}
	return false
}

// Queue is the durable, append-only pending-upload list. Membership
// survives process restarts; an item leaves only when every required
// endpoint has acknowledged it or the user discards it.
type Queue struct {
	store    kvstore.Store
	logger   *events.Logger
	required []string

	mu    sync.Mutex
	items map[string]*Item
}

// New creates a queue over the given store and restores persisted
// membership. required lists the endpoint names whose success is
// mandatory for removal.
func New(store kvstore.Store, required []string, logger *events.Logger) *Queue {
	q := &Queue{
		store:    store,
		logger:   logger.WithField("component", "sync_queue"),
		required: append([]string(nil), required...),
		items:    make(map[string]*Item),
	}
	q.restore()
	return q
}

// restore reloads queue membership from the durable store.
func (q *Queue) restore() {
	keys, err := q.store.ListKeys(QueuePrefix)
	if err != nil {
		q.logger.WithError(err).Warn("Queue restore failed, starting empty")
		return
	}

	for _, key := range keys {
		data, err := q.store.Get(key)
		if err != nil {
			q.logger.WithError(err).WithField("key", key).Warn("Skipping unreadable queue item")
			continue
		}

		var item Item
		if err := json.Unmarshal(data, &item); err != nil {
			q.logger.WithError(err).WithField("key", key).Warn("Skipping corrupt queue item")
			continue
		}
		if item.Results == nil {
			item.Results = make(map[string]Result)
		}

		q.items[item.EntryID] = &item
	}

	if len(q.items) > 0 {
		q.logger.WithField("count", len(q.items)).Info("Restored pending queue items")
	}
}

// Enqueue appends a reference for the entry. Idempotent by ID: re-adding
// a queued entry is a no-op. A durable-write fault is logged and the item
// is held in memory; the caller still sees success.
func (q *Queue) Enqueue(entry *models.TrackingEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.items[entry.ID]; exists {
		return nil
	}

	item := &Item{
		EntryID:    entry.ID,
		EnqueuedAt: entry.Timestamp,
		Results:    make(map[string]Result),
	}
	q.items[entry.ID] = item
	q.persist(item)

	return nil
}

// DequeueBatch returns up to max queued items in FIFO capture order
// without removing them. Terminal items are excluded.
func (q *Queue) DequeueBatch(max int) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := make([]*Item, 0, max)
	for _, item := range q.items {
		if !item.Terminal {
			batch = append(batch, item)
		}
	}

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].EnqueuedAt.Equal(batch[j].EnqueuedAt) {
			return batch[i].EntryID < batch[j].EntryID
		}
		return batch[i].EnqueuedAt.Before(batch[j].EnqueuedAt)
	})

	if len(batch) > max {
		batch = batch[:max]
	}

	out := make([]*Item, len(batch))
	for i, item := range batch {
		out[i] = cloneItem(item)
	}
	return out
}

// MarkResult records the outcome of one (entry, endpoint) attempt.
func (q *Queue) MarkResult(entryID, endpoint string, res Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[entryID]
	if !ok {
		return models.ErrEntryNotFound
	}

	if res.At.IsZero() {
		res.At = time.Now().UTC()
	}
	item.Results[endpoint] = res
	if !res.Success && res.Error != "" {
		item.LastError = res.Error
	}
	q.persist(item)

	return nil
}

// BumpAttempt increments the item's attempt counter.
func (q *Queue) BumpAttempt(entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[entryID]
	if !ok {
		return models.ErrEntryNotFound
	}

	item.Attempts++
	q.persist(item)
	return nil
}

// MarkTerminal flags an item as permanently failed. It stays queued and
// visible until the user discards it; nothing is silently dropped.
func (q *Queue) MarkTerminal(entryID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[entryID]
	if !ok {
		return models.ErrEntryNotFound
	}

	item.Terminal = true
	item.LastError = reason
	q.persist(item)
	return nil
}

// Complete removes the item if every required endpoint has a recorded
// success. Returns true when the item was dequeued.
func (q *Queue) Complete(entryID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[entryID]
	if !ok {
		return false, models.ErrEntryNotFound
	}

	for _, endpoint := range q.required {
		if !item.SucceededOn(endpoint) {
			return false, nil
		}
	}

	delete(q.items, entryID)
	if err := q.store.Remove(QueuePrefix + entryID); err != nil {
		q.logger.WithError(err).WithField("entry_id", entryID).Warn("Durable dequeue failed")
	}

	return true, nil
}

// Discard drops an item regardless of state. User-initiated only.
func (q *Queue) Discard(entryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[entryID]; !ok {
		return models.ErrEntryNotFound
	}

	delete(q.items, entryID)
	if err := q.store.Remove(QueuePrefix + entryID); err != nil {
		return &models.StorageFault{Op: "remove", Key: QueuePrefix + entryID, Err: err}
	}
	return nil
}

// Clear drops every item. User-initiated bulk clear only.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make(map[string]*Item)

	keys, err := q.store.ListKeys(QueuePrefix)
	if err != nil {
		return &models.StorageFault{Op: "list", Err: err}
	}
	for _, key := range keys {
		if err := q.store.Remove(key); err != nil {
			return &models.StorageFault{Op: "remove", Key: key, Err: err}
		}
	}

	return nil
}

// Get returns a copy of the item for entryID.
func (q *Queue) Get(entryID string) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[entryID]
	if !ok {
		return nil, false
	}
	return cloneItem(item), true
}

// Len reports how many items are queued, terminal ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Counts summarizes queue state for status reporting.
type Counts struct {
	Pending  int `json:"pending"`
	Partial  int `json:"partial"`
	Terminal int `json:"terminal"`
}

// Summarize computes pending/partial/terminal counts.
func (q *Queue) Summarize() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()

	var c Counts
	for _, item := range q.items {
		switch {
		case item.Terminal:
			c.Terminal++
		case item.Partial():
			c.Partial++
		default:
			c.Pending++
		}
	}
	return c
}

// Required returns the configured required endpoint names.
func (q *Queue) Required() []string {
	return append([]string(nil), q.required...)
}

// persist writes an item durably. Callers hold q.mu.
func (q *Queue) persist(item *Item) {
	data, err := json.Marshal(item)
	if err != nil {
		q.logger.WithError(err).WithField("entry_id", item.EntryID).Error("Marshal queue item failed")
		return
	}

	if err := q.store.Set(QueuePrefix+item.EntryID, data); err != nil {
		fault := &models.StorageFault{Op: "set", Key: QueuePrefix + item.EntryID, Err: err}
		q.logger.WithError(fault).WithField("entry_id", item.EntryID).Warn("Durable queue write failed, item held in memory")
	}
}

func cloneItem(item *Item) *Item {
	clone := *item
	clone.Results = make(map[string]Result, len(item.Results))
	for k, v := range item.Results {
		clone.Results[k] = v
	}
	return &clone
}
