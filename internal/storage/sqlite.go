// Package storage provides the SQLite-backed registry of paired devices.
//
// The registry records every phone that successfully pairs with the host so
// the CLI can list them and the relay can stamp last-seen activity. It is
// bookkeeping, not an access control list: connection auth is the pairing
// token, which lives only in process memory.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	// Pure-Go SQLite driver, imported for its driver registration side
	// effect. No CGO keeps cross-compilation simple.
	_ "modernc.org/sqlite"
)

// ErrDeviceNotFound is returned when a device lookup fails.
var ErrDeviceNotFound = errors.New("device not found")

// schema creates the devices table. Timestamps are stored as RFC3339 text.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	remote_addr TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	last_seen   TEXT NOT NULL
);
`

// SQLiteStore implements the device registry using SQLite.
// It creates the database and table on first use and supports concurrent
// access through internal locking.
type SQLiteStore struct {
	db *sql.DB      // Database connection handle.
	mu sync.RWMutex // Guards all database operations for thread safety.
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// busy_timeout handles concurrent access from the CLI and a running
	// host (e.g. `airvoice devices list` while serving).
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}
