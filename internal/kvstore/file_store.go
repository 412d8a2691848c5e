package kvstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/railfield/tracksync/internal/events"
)

// FileStore persists keys as files under a base directory. Key prefixes
// map to subdirectories, so "entry/<id>" lives in <base>/entry/<id>.kv.
type FileStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

const fileExt = ".kv"

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string, logger *events.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	return &FileStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "file_store"),
	}, nil
}

// Get reads a key's bytes from disk.
func (s *FileStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.keyPath(key))
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", key, err)
	}

	return data, nil
}

// Set writes a key atomically via temp file and rename.
func (s *FileStore) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	// Flush before the rename so a crash cannot leave a truncated value.
	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		_ = file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename key file: %w", err)
	}

	return nil
}

// Remove deletes a key's file. Missing keys are ignored.
func (s *FileStore) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.keyPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove key %s: %w", key, err)
	}
	return nil
}

// ListKeys walks the tree under prefix and returns matching keys.
func (s *FileStore) ListKeys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := s.baseDir
	if prefix != "" {
		root = filepath.Join(s.baseDir, filepath.FromSlash(prefix))
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var keys []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}

		key := strings.TrimSuffix(filepath.ToSlash(rel), fileExt)
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk store directory: %w", err)
	}

	return keys, nil
}

// Close releases resources.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) keyPath(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key)+fileExt)
}
