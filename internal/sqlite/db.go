// Package sqlite holds every SQLite concern of the exporter: the
// snapshot provider that copies the live catalog, the read-only catalog
// queries, and the export ledger.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) a read-write SQLite database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ATTACH and pragmas are per connection; the job is sequential, so
	// pin everything to a single connection.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// OpenReadOnly opens a SQLite database that must never be written:
// read-only mode at the VFS level plus query_only as a second fence.
func OpenReadOnly(path string) (*DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database read-only: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set query_only: %w", err)
	}
	return &DB{db}, nil
}
