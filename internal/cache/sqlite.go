package cache

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and if needed creates) a render cache.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCache, "open sqlite database").
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, errors.WrapError(err, errors.CategoryCache, "initialize schema").
			WithContext("path", dbPath).
			Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS renders (
		key TEXT PRIMARY KEY,
		svg TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get looks up a rendered diagram.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var svg string
	err := s.db.QueryRowContext(ctx, "SELECT svg FROM renders WHERE key = ?", key).Scan(&svg)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapError(err, errors.CategoryCache, "query render").
			WithContext("key", key).
			Build()
	}
	return svg, true, nil
}

// Put stores a rendered diagram, replacing any previous entry for key.
func (s *SQLiteStore) Put(ctx context.Context, key, svg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO renders (key, svg, created_at) VALUES (?, ?, ?)",
		key, svg, time.Now().Unix(),
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryCache, "insert render").
			WithContext("key", key).
			Build()
	}
	return nil
}

// Count returns the number of cached renders.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM renders").Scan(&n); err != nil {
		return 0, errors.WrapError(err, errors.CategoryCache, "count renders").Build()
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
