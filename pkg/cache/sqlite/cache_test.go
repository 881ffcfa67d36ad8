package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, ttl, WithClock(clock.now))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, clock
}

func TestHashPrompt(t *testing.T) {
	h1 := HashPrompt("acme/abc-gen", "enhance X:1")
	h2 := HashPrompt("acme/abc-gen", "enhance X:1")
	h3 := HashPrompt("acme/other", "enhance X:1")
	h4 := HashPrompt("acme/abc-gen", "enhance X:2")

	if h1 != h2 {
		t.Error("same input should produce same hash")
	}
	if h1 == h3 {
		t.Error("different endpoint should produce different hash")
	}
	if h1 == h4 {
		t.Error("different prompt should produce different hash")
	}
	if HashPrompt("ab", "c") == HashPrompt("a", "bc") {
		t.Error("endpoint and prompt must not run together")
	}
}

func TestPutAndGet(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	hash := HashPrompt("acme/abc-gen", "prompt")

	if err := c.Put(ctx, hash, "acme/abc-gen", "X:1\nK:C\nC|"); err != nil {
		t.Fatal(err)
	}

	content, ok := c.Get(ctx, hash, "acme/abc-gen")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if content != "X:1\nK:C\nC|" {
		t.Errorf("unexpected content: %q", content)
	}

	if _, ok := c.Get(ctx, hash, "acme/other"); ok {
		t.Error("expected cache miss for different endpoint")
	}
}

func TestPutRejectsEmpty(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	if err := c.Put(context.Background(), "h", "e", ""); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestTTLExpiration(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.Put(ctx, "testhash", "ep", "X:1\nK:C\nC|"); err != nil {
		t.Fatal(err)
	}

	clock.t = clock.t.Add(59 * time.Second)
	if _, ok := c.Get(ctx, "testhash", "ep"); !ok {
		t.Error("expected hit before expiry")
	}

	clock.t = clock.t.Add(time.Second)
	if _, ok := c.Get(ctx, "testhash", "ep"); ok {
		t.Error("expected cache miss after TTL expiration")
	}
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "h1", "ep", "data")
	c.Get(ctx, "h1", "ep") // hit
	c.Get(ctx, "h2", "ep") // miss

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

func TestEntries(t *testing.T) {
	c, clock := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "h1", "ep", "first")
	clock.t = clock.t.Add(time.Minute)
	_ = c.Put(ctx, "h2", "ep", "second")

	entries, err := c.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Content != "second" || entries[0].TTL != time.Hour {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "h1", "ep", "data")
	_ = c.Put(ctx, "h2", "ep", "data")

	n, err := c.Clear(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}

	stats, _ := c.Stats(ctx)
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after clear, got %d", stats.Entries)
	}
}

func TestClearExpiredOnly(t *testing.T) {
	c, clock := newTestCache(t, time.Hour)
	ctx := context.Background()

	_ = c.Put(ctx, "old", "ep", "data")
	clock.t = clock.t.Add(30 * time.Minute)
	_ = c.Put(ctx, "new", "ep", "data")
	clock.t = clock.t.Add(45 * time.Minute)

	n, err := c.Clear(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired entry removed, got %d", n)
	}
	if _, ok := c.Get(ctx, "new", "ep"); !ok {
		t.Error("unexpired entry should survive")
	}
}
