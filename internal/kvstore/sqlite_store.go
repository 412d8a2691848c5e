package kvstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/railfield/tracksync/internal/events"
)

// SQLiteStore persists keys in a single SQLite table. Preferred on
// devices where thousands of entries make a file-per-key layout slow.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore opens (and if needed initializes) a SQLite-backed store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS kv_entries (
        key TEXT PRIMARY KEY,
        value BLOB NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get retrieves a value by key.
func (s *SQLiteStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query key %s: %w", key, err)
	}

	return value, nil
}

// Set upserts a value.
func (s *SQLiteStore) Set(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	_, err := s.db.Exec(`
        INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
    `, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert key %s: %w", key, err)
	}

	return nil
}

// Remove deletes a key.
func (s *SQLiteStore) Remove(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if _, err := s.db.Exec(`DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete key %s: %w", key, err)
	}
	return nil
}

// ListKeys returns keys matching prefix in key order.
func (s *SQLiteStore) ListKeys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM kv_entries WHERE key LIKE ? || '%' ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
