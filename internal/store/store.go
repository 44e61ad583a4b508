// Package store provides SQLite-backed persistence for skillscan: the
// discovery ledger rows and the label vectors of the semantic pass.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface,
// with the sqlite-vec extension registered for vector distance functions.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

// SQLiteStore is the SQLite-backed data store.
// Thread-safe for concurrent pipeline workers.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema defines all tables of the store.
const schema = `
-- Discovery candidates, one row per term and role
CREATE TABLE IF NOT EXISTS discoveries (
    term_key TEXT NOT NULL,
    role TEXT NOT NULL,
    term TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    context TEXT NOT NULL DEFAULT '',
    first_seen INTEGER NOT NULL,
    last_seen INTEGER NOT NULL,
    PRIMARY KEY (term_key, role)
);

CREATE INDEX IF NOT EXISTS idx_discoveries_count ON discoveries(count DESC);

-- Permanently suppressed terms
CREATE TABLE IF NOT EXISTS ignored_terms (
    term_key TEXT PRIMARY KEY,
    term TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

-- Reviewed terms promoted into the taxonomy
CREATE TABLE IF NOT EXISTS approvals (
    term_key TEXT PRIMARY KEY,
    term TEXT NOT NULL,
    canonical TEXT NOT NULL,
    approved_at INTEGER NOT NULL
);

-- Label vectors for the semantic pass; index_id derives from model and label pool
CREATE TABLE IF NOT EXISTS label_vectors (
    index_id TEXT NOT NULL,
    model TEXT NOT NULL,
    label TEXT NOT NULL,
    dim INTEGER NOT NULL,
    embedding BLOB NOT NULL,
    PRIMARY KEY (index_id, label)
);

CREATE INDEX IF NOT EXISTS idx_label_vectors_model ON label_vectors(model);
`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every pooled connection to ":memory:" would be its own database.
	db.SetMaxOpenConns(1)

	// Create schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
