package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is recorded in PRAGMA user_version.
const schemaVersion = 1

// dsnParams are applied by the driver to every connection: WAL so trace
// can read while serve writes, and a busy timeout for lock contention.
const dsnParams = "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// Store is the event journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path. It is safe to call on an
// existing journal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database for direct queries in tests and
// tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}
