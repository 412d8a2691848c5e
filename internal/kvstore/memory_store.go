package kvstore

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and as the fallback
// when the durable store faults. Supports error injection.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte

	// Error injection for tests.
	GetError    error
	SetError    error
	RemoveError error
	ListError   error

	// Call tracking.
	SetCalls    int
	RemoveCalls int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get returns a copy of the stored value.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.GetError != nil {
		return nil, s.GetError
	}

	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value.
func (s *MemoryStore) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.SetCalls++
	if s.SetError != nil {
		return s.SetError
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Remove deletes a key.
func (s *MemoryStore) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.RemoveCalls++
	if s.RemoveError != nil {
		return s.RemoveError
	}

	delete(s.data, key)
	return nil
}

// ListKeys returns sorted keys with the given prefix.
func (s *MemoryStore) ListKeys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ListError != nil {
		return nil, s.ListError
	}

	var keys []string
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close releases resources.
func (s *MemoryStore) Close() error {
	return nil
}

// Len reports the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
