package cache

import (
	"errors"
	"sort"
	"sync"

	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/kvstore"
	"github.com/railfield/tracksync/internal/models"
)

// EntryPrefix is the key namespace for durable entry records.
const EntryPrefix = "entry/"

// EntryCache is an in-memory index over stored tracking entries. The
// durable store owns the bytes; the cache is a rebuildable view. A store
// fault flips it to memory-only operation rather than failing captures.
type EntryCache struct {
	store  kvstore.Store
	logger *events.Logger

	mu         sync.RWMutex
	entries    map[string]*models.TrackingEntry
	memoryOnly bool
}

// NewEntryCache creates a cache over the given store.
func NewEntryCache(store kvstore.Store, logger *events.Logger) *EntryCache {
	return &EntryCache{
		store:   store,
		logger:  logger.WithField("component", "entry_cache"),
		entries: make(map[string]*models.TrackingEntry),
	}
}

// Put stores or overwrites an entry by ID and schedules a durable write.
// A durable-store failure is logged as a StorageFault and the entry is
// held in memory; the caller still sees success.
func (c *EntryCache) Put(entry *models.TrackingEntry) error {
	c.mu.Lock()
	c.entries[entry.ID] = entry.Clone()
	c.mu.Unlock()

	data, err := models.EncodeEntry(entry)
	if err != nil {
		return err
	}

	if err := c.store.Set(EntryPrefix+entry.ID, data); err != nil {
		fault := &models.StorageFault{Op: "set", Key: EntryPrefix + entry.ID, Err: err}
		c.logger.WithError(fault).Warn("Durable write failed, entry held in memory")

		c.mu.Lock()
		c.memoryOnly = true
		c.mu.Unlock()
	}

	return nil
}

// Get returns the cached entry, falling back to a durable read on miss.
func (c *EntryCache) Get(id string) (*models.TrackingEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if ok {
		return entry.Clone(), nil
	}

	data, err := c.store.Get(EntryPrefix + id)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, models.ErrEntryNotFound
	}
	if err != nil {
		c.logger.WithError(err).WithField("entry_id", id).Warn("Durable read failed")
		return nil, models.ErrEntryNotFound
	}

	entry, err = models.DecodeEntry(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = entry
	c.mu.Unlock()

	return entry.Clone(), nil
}

// ListAll returns every known entry sorted by timestamp descending.
// A durable-store failure degrades to whatever the memory index holds.
func (c *EntryCache) ListAll() []*models.TrackingEntry {
	keys, err := c.store.ListKeys(EntryPrefix)
	if err != nil {
		c.logger.WithError(err).Warn("List from store failed, serving memory index")
	}

	for _, key := range keys {
		id := key[len(EntryPrefix):]

		c.mu.RLock()
		_, cached := c.entries[id]
		c.mu.RUnlock()
		if cached {
			continue
		}

		data, err := c.store.Get(key)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Skipping unreadable entry")
			continue
		}

		entry, err := models.DecodeEntry(data)
		if err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Skipping corrupt entry")
			continue
		}

		c.mu.Lock()
		c.entries[id] = entry
		c.mu.Unlock()
	}

	c.mu.RLock()
	all := make([]*models.TrackingEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		all = append(all, entry.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	return all
}

// Remove deletes an entry from memory and the durable store.
func (c *EntryCache) Remove(id string) error {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()

	if err := c.store.Remove(EntryPrefix + id); err != nil {
		return &models.StorageFault{Op: "remove", Key: EntryPrefix + id, Err: err}
	}
	return nil
}

// Clear drops every entry. Only the explicit user-initiated bulk clear
// calls this.
func (c *EntryCache) Clear() error {
	c.mu.Lock()
	c.entries = make(map[string]*models.TrackingEntry)
	c.mu.Unlock()

	keys, err := c.store.ListKeys(EntryPrefix)
	if err != nil {
		return &models.StorageFault{Op: "list", Err: err}
	}

	for _, key := range keys {
		if err := c.store.Remove(key); err != nil {
			return &models.StorageFault{Op: "remove", Key: key, Err: err}
		}
	}

	return nil
}

// Degraded reports whether a storage fault forced memory-only mode.
func (c *EntryCache) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.memoryOnly
}
