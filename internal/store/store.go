// Package store is the SQLite data access layer for the semantic graph:
// containers, blocks, relationships, versions, branches, commits, and
// ingest migrations. Writes for one container are batched into a single
// transaction; schema changes run through an ordered, forward-only
// migration list.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	fts bool // FTS5 virtual table available
}

// NewStore opens a SQLite database at dsn with WAL mode and foreign keys
// enabled. dsn is a file path or a sqlite:// DATABASE_URL.
func NewStore(dsn string) (*Store, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")
	if !strings.Contains(path, "?") {
		path += "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FTSEnabled reports whether full-text search is backed by FTS5. When
// the SQLite build lacks FTS5 the store falls back to LIKE scoring.
func (s *Store) FTSEnabled() bool {
	return s.fts
}

// GetMetadata returns the value for a metadata key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata upserts a metadata key.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
