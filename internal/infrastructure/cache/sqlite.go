package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/booklens/backend/internal/domain"
)

const createCacheTable = `CREATE TABLE IF NOT EXISTS cache_entries (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    expires_at INTEGER NOT NULL
)`

// SQLiteCache persists cache entries in a SQLite file so search results
// survive restarts
type SQLiteCache struct {
	db   *sql.DB
	path string
}

// OpenSQLiteCache opens (or creates) the cache database at path
func OpenSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.ExecContext(ctx, createCacheTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache table: %w", err)
	}

	return &SQLiteCache{db: db, path: path}, nil
}

// Close closes the underlying database connection
func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get retrieves a value; expired rows are a miss
func (c *SQLiteCache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?`,
		key, time.Now().UnixNano(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	return value, nil
}

// Set upserts a value with TTL
func (c *SQLiteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, time.Now().Add(ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Delete removes a value
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Exists reports whether an unexpired entry is present
func (c *SQLiteCache) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.Get(ctx, key)
	if errors.Is(err, domain.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Purge deletes expired rows and returns how many were removed
func (c *SQLiteCache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return res.RowsAffected()
}
