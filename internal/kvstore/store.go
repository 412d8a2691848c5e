package kvstore

import (
	"errors"
	"fmt"
	"strings"
)

// Store is the durable key-value boundary the core persists through.
// Keys are slash-separated paths such as "entry/<id>" or "queue/<id>";
// the store is the single source of truth and every in-memory structure
// must be rebuildable from it.
type Store interface {
	// Get retrieves the value for a key.
	Get(key string) ([]byte, error)

	// Set stores a value, overwriting any previous one.
	Set(key string, value []byte) error

	// Remove deletes a key. Removing a missing key is not an error.
	Remove(key string) error

	// ListKeys returns all keys with the given prefix.
	ListKeys(prefix string) ([]string, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrStoreCorrupt = errors.New("store is corrupt")
	ErrInvalidKey   = errors.New("invalid key")
)

// ValidateKey enforces the key grammar shared by all implementations.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '/' || r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}
	if strings.Contains(key, "..") || strings.Contains(key, "//") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
