package queue_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/kvstore"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/queue"
)

func newTestLogger() *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", &bytes.Buffer{})
}

func newEntry(offset time.Duration) *models.TrackingEntry {
	entry := models.NewEntry(models.KindScan, "FIT-100", models.Payload{})
	entry.Timestamp = time.Now().UTC().Add(offset)
	return entry
}

func TestEnqueueIdempotent(t *testing.T) {
	store := kvstore.NewMemoryStore()
	q := queue.New(store, []string{"inventory"}, newTestLogger())

	entry := newEntry(-time.Minute)
	require.NoError(t, q.Enqueue(entry))
	require.NoError(t, q.Enqueue(entry))

	assert.Equal(t, 1, q.Len())

	keys, err := store.ListKeys(queue.QueuePrefix)
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestEnqueueRejectsInvalidEntry(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory"}, newTestLogger())

	entry := newEntry(0)
	entry.SubjectID = ""

	err := q.Enqueue(entry)
	var verr *models.ValidationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, q.Len())
}

func TestDequeueBatchFIFO(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory"}, newTestLogger())

	oldest := newEntry(-3 * time.Minute)
	middle := newEntry(-2 * time.Minute)
	newest := newEntry(-time.Minute)

	// Enqueue out of capture order.
	require.NoError(t, q.Enqueue(newest))
	require.NoError(t, q.Enqueue(oldest))
	require.NoError(t, q.Enqueue(middle))

	batch := q.DequeueBatch(2)
	require.Len(t, batch, 2)
	assert.Equal(t, oldest.ID, batch[0].EntryID)
	assert.Equal(t, middle.ID, batch[1].EntryID)

	// Non-destructive.
	assert.Equal(t, 3, q.Len())
}

func TestRequiredEndpointRule(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory", "inspection"}, newTestLogger())

	entry := newEntry(0)
	require.NoError(t, q.Enqueue(entry))

	// Success on one required endpoint only: stays queued, partial.
	require.NoError(t, q.MarkResult(entry.ID, "inventory", queue.Result{Success: true, ServerID: "srv-9"}))

	removed, err := q.Complete(entry.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	item, ok := q.Get(entry.ID)
	require.True(t, ok)
	assert.True(t, item.Partial())

	// Success on an unrelated optional endpoint does not help.
	require.NoError(t, q.MarkResult(entry.ID, "archive", queue.Result{Success: true}))
	removed, err = q.Complete(entry.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	// Both required endpoints acknowledged: dequeued.
	require.NoError(t, q.MarkResult(entry.ID, "inspection", queue.Result{Success: true}))
	removed, err = q.Complete(entry.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Zero(t, q.Len())
}

func TestMarkResultFailureTracksError(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory"}, newTestLogger())

	entry := newEntry(0)
	require.NoError(t, q.Enqueue(entry))
	require.NoError(t, q.MarkResult(entry.ID, "inventory", queue.Result{
		Success: false,
		Error:   "connection refused",
	}))

	item, ok := q.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, "connection refused", item.LastError)
	assert.False(t, item.Partial())
}

func TestTerminalItemsExcludedFromBatches(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory"}, newTestLogger())

	entry := newEntry(0)
	require.NoError(t, q.Enqueue(entry))
	require.NoError(t, q.MarkTerminal(entry.ID, "payload rejected"))

	assert.Empty(t, q.DequeueBatch(10))

	// Still visible, not silently dropped.
	assert.Equal(t, 1, q.Len())
	counts := q.Summarize()
	assert.Equal(t, 1, counts.Terminal)
}

func TestQueueSurvivesRestart(t *testing.T) {
	store := kvstore.NewMemoryStore()

	q := queue.New(store, []string{"inventory"}, newTestLogger())
	entry := newEntry(0)
	require.NoError(t, q.Enqueue(entry))
	require.NoError(t, q.MarkResult(entry.ID, "inventory", queue.Result{Success: false, Error: "timeout"}))
	require.NoError(t, q.BumpAttempt(entry.ID))

	// New queue over the same store: membership and bookkeeping survive.
	restored := queue.New(store, []string{"inventory"}, newTestLogger())
	assert.Equal(t, 1, restored.Len())

	item, ok := restored.Get(entry.ID)
	require.True(t, ok)
	assert.Equal(t, 1, item.Attempts)
	assert.Equal(t, "timeout", item.LastError)
}

func TestEnqueueSurvivesStorageFault(t *testing.T) {
	store := kvstore.NewMemoryStore()
	store.SetError = errors.New("disk full")

	q := queue.New(store, []string{"inventory"}, newTestLogger())

	// Caller still sees success; item held in memory.
	require.NoError(t, q.Enqueue(newEntry(0)))
	assert.Equal(t, 1, q.Len())
}

func TestDiscardAndClear(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory"}, newTestLogger())

	first := newEntry(-time.Minute)
	second := newEntry(0)
	require.NoError(t, q.Enqueue(first))
	require.NoError(t, q.Enqueue(second))

	require.NoError(t, q.Discard(first.ID))
	assert.Equal(t, 1, q.Len())

	assert.ErrorIs(t, q.Discard(first.ID), models.ErrEntryNotFound)

	require.NoError(t, q.Clear())
	assert.Zero(t, q.Len())
}

func TestSummarize(t *testing.T) {
	q := queue.New(kvstore.NewMemoryStore(), []string{"inventory", "inspection"}, newTestLogger())

	pending := newEntry(-3 * time.Minute)
	partial := newEntry(-2 * time.Minute)
	failed := newEntry(-time.Minute)

	for _, e := range []*models.TrackingEntry{pending, partial, failed} {
		require.NoError(t, q.Enqueue(e))
	}
	require.NoError(t, q.MarkResult(partial.ID, "inventory", queue.Result{Success: true}))
	require.NoError(t, q.MarkTerminal(failed.ID, "rejected"))

	counts := q.Summarize()
	assert.Equal(t, queue.Counts{Pending: 1, Partial: 1, Terminal: 1}, counts)
}
