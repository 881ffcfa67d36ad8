// Package sqlite is an exact-match cache of enhanced notation, keyed by the
// rendered prompt and the endpoint that produced it.
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/orpheus-ai/orpheus/pkg/models"
)

// Cache is an exact-match enhancement cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS enhancement_cache (
	prompt_hash TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	content TEXT NOT NULL,
	created_unix INTEGER NOT NULL,
	expires_unix INTEGER NOT NULL,
	PRIMARY KEY (prompt_hash, endpoint)
);
`

// New creates a Cache with the given database path and default TTL.
func New(dbPath string, ttl time.Duration, opts ...Option) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	c := &Cache{db: db, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// HashPrompt computes a SHA-256 hash of the endpoint and the rendered prompt.
func HashPrompt(endpoint, prompt string) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get retrieves cached content. Expired and missing entries are misses.
func (c *Cache) Get(ctx context.Context, promptHash, endpoint string) (string, bool) {
	var content string
	var expires int64

	err := c.db.QueryRowContext(ctx,
		`SELECT content, expires_unix FROM enhancement_cache WHERE prompt_hash = ? AND endpoint = ?`,
		promptHash, endpoint,
	).Scan(&content, &expires)

	if err != nil || c.now().Unix() >= expires {
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return content, true
}

// Put stores enhanced content.
func (c *Cache) Put(ctx context.Context, promptHash, endpoint, content string) error {
	if content == "" {
		return errors.New("cache put: empty content")
	}
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO enhancement_cache (prompt_hash, endpoint, content, created_unix, expires_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		promptHash, endpoint, content, now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Entries returns the stored entries, newest first.
func (c *Cache) Entries(ctx context.Context) ([]models.CacheEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT prompt_hash, endpoint, content, created_unix, expires_unix
		 FROM enhancement_cache ORDER BY created_unix DESC`)
	if err != nil {
		return nil, fmt.Errorf("cache entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		var e models.CacheEntry
		var created, expires int64
		if err := rows.Scan(&e.PromptHash, &e.Endpoint, &e.Content, &created, &expires); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		e.TTL = time.Duration(expires-created) * time.Second
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM enhancement_cache`).Scan(&count)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes cache entries. If expiredOnly is true, only expired entries
// are removed. It returns the number of entries removed.
func (c *Cache) Clear(ctx context.Context, expiredOnly bool) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if expiredOnly {
		res, err = c.db.ExecContext(ctx, `DELETE FROM enhancement_cache WHERE expires_unix <= ?`, c.now().Unix())
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM enhancement_cache`)
	}
	if err != nil {
		return 0, fmt.Errorf("cache clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
