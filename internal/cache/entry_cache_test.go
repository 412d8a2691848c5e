package cache_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railfield/tracksync/internal/cache"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/kvstore"
	"github.com/railfield/tracksync/internal/models"
)

func newTestLogger() *events.Logger {
	return events.NewTestLogger(events.DebugLevel, "json", &bytes.Buffer{})
}

func TestEntryCachePutGet(t *testing.T) {
	store := kvstore.NewMemoryStore()
	c := cache.NewEntryCache(store, newTestLogger())

	entry := models.NewEntry(models.KindScan, "FIT-1", models.Payload{})
	require.NoError(t, c.Put(entry))

	got, err := c.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)

	// Entry is durably persisted, not just cached.
	data, err := store.Get(cache.EntryPrefix + entry.ID)
	require.NoError(t, err)
	stored, err := models.DecodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, entry.SubjectID, stored.SubjectID)
}

func TestEntryCacheReadThrough(t *testing.T) {
	store := kvstore.NewMemoryStore()

	// Seed the store directly, bypassing the cache.
	entry := models.NewEntry(models.KindInspection, "FIT-2", models.Payload{
		Condition: models.ConditionGood,
	})
	data, err := models.EncodeEntry(entry)
	require.NoError(t, err)
	require.NoError(t, store.Set(cache.EntryPrefix+entry.ID, data))

	c := cache.NewEntryCache(store, newTestLogger())

	got, err := c.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.SubjectID, got.SubjectID)

	// Second read is served from memory even if the store fails.
	store.GetError = errors.New("disk unplugged")
	got, err = c.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestEntryCacheMissingEntry(t *testing.T) {
	c := cache.NewEntryCache(kvstore.NewMemoryStore(), newTestLogger())

	_, err := c.Get("no-such-id")
	assert.ErrorIs(t, err, models.ErrEntryNotFound)
}

func TestEntryCacheStorageFaultStillSucceeds(t *testing.T) {
	store := kvstore.NewMemoryStore()
	store.SetError = errors.New("store offline")

	c := cache.NewEntryCache(store, newTestLogger())
	entry := models.NewEntry(models.KindScan, "FIT-3", models.Payload{})

	// Capture path must see success; the fault is logged, not returned.
	require.NoError(t, c.Put(entry))
	assert.True(t, c.Degraded())

	got, err := c.Get(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestEntryCacheListAllOrdering(t *testing.T) {
	store := kvstore.NewMemoryStore()
	c := cache.NewEntryCache(store, newTestLogger())

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		entry := models.NewEntry(models.KindScan, "FIT-4", models.Payload{})
		entry.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, c.Put(entry))
		ids = append(ids, entry.ID)
	}

	all := c.ListAll()
	require.Len(t, all, 3)

	// Newest first.
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[1], all[1].ID)
	assert.Equal(t, ids[0], all[2].ID)
}

func TestEntryCacheListAllRebuildsFromStore(t *testing.T) {
	store := kvstore.NewMemoryStore()

	first := cache.NewEntryCache(store, newTestLogger())
	entry := models.NewEntry(models.KindScan, "FIT-5", models.Payload{})
	require.NoError(t, first.Put(entry))

	// Fresh cache over the same store sees the entry.
	rebuilt := cache.NewEntryCache(store, newTestLogger())
	all := rebuilt.ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, entry.ID, all[0].ID)
}

func TestEntryCacheListAllDegradesOnStoreFault(t *testing.T) {
	store := kvstore.NewMemoryStore()
	c := cache.NewEntryCache(store, newTestLogger())

	entry := models.NewEntry(models.KindScan, "FIT-6", models.Payload{})
	require.NoError(t, c.Put(entry))

	store.ListError = errors.New("io error")

	// Degrades to the memory index instead of failing.
	all := c.ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, entry.ID, all[0].ID)
}

func TestEntryCacheClear(t *testing.T) {
	store := kvstore.NewMemoryStore()
	c := cache.NewEntryCache(store, newTestLogger())

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(models.NewEntry(models.KindScan, "FIT-7", models.Payload{})))
	}

	require.NoError(t, c.Clear())
	assert.Empty(t, c.ListAll())
	assert.Equal(t, 0, store.Len())
}

func TestEntryCacheWrappedNotFound(t *testing.T) {
	store := kvstore.NewMemoryStore()
	buf := &bytes.Buffer{}
	c := cache.NewEntryCache(store, events.NewTestLogger(events.WarnLevel, "json", buf))

	// A wrapped not-found from the store is still a clean miss, not a
	// degraded read.
	store.GetError = fmt.Errorf("shard read: %w", kvstore.ErrKeyNotFound)

	_, err := c.Get("no-such-entry")
	require.ErrorIs(t, err, models.ErrEntryNotFound)
	assert.NotContains(t, buf.String(), "Durable read failed")
}
