package models

import "time"

// CacheEntry stores an enhanced version of a piece keyed by prompt.
type CacheEntry struct {
	PromptHash string        `json:"prompt_hash"`
	Endpoint   string        `json:"endpoint"`
	Content    string        `json:"content"`
	CreatedAt  time.Time     `json:"created_at"`
	TTL        time.Duration `json:"ttl"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
