package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup or in-place update matches nothing.
var ErrNotFound = errors.New("store: not found")

// DB wraps the SQLite connection backing the conversation store.
type DB struct {
	*sql.DB
}

// Open creates the SQLite connection. path ":memory:" keeps all state in
// process memory (the daemon default: history lives only as long as the
// process); any other value is a file path, used by tests.
func Open(path string) (*DB, error) {
	dsn := path + "?_busy_timeout=5000"
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Each connection gets its own in-memory database; pin the pool
		// to one so every query sees the same state.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
