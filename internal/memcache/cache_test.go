package memcache

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/entry"
	"github.com/stratacache/go-strata-cache/internal/events"
)

func newTestCache(t *testing.T, cfg config.MemoryCfg) *Cache {
	t.Helper()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.Policy == "" {
		cfg.Policy = config.PolicyLRU
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(context.Background(), cfg, logger, events.NewBus())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// fakeClock lets tests advance the cache clock deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// TestCache_SetGet round-trips an entry and records access stats.
func TestCache_SetGet(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("a", "value-a", 0)))

	e, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value-a", e.Value)
	require.Equal(t, int64(1), e.AccessCount)

	_, ok, err = c.Get(ctx, "absent")
	require.NoError(t, err)
	require.False(t, ok)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, int64(1), stats.Sets)
	require.Equal(t, 0.5, stats.HitRatio())
}

// TestCache_TTLExpiry lazily evicts an expired entry on access.
func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	clock := &fakeClock{now: time.Now()}
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("short", "v", time.Minute)))
	require.NoError(t, c.Set(ctx, entry.New("forever", "v", 0)))

	clock.Advance(2 * time.Minute)

	_, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, int64(1), c.Stats().Expirations)
}

// TestCache_DefaultTTL applies the configured default to entries stored
// without an explicit expiry.
func TestCache_DefaultTTL(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{DefaultTTL: time.Minute})
	clock := &fakeClock{now: time.Now()}
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("k", "v", 0)))

	clock.Advance(2 * time.Minute)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCache_UpdateInPlace replaces the value, bumps the version and does not
// grow the entry count.
func TestCache_UpdateInPlace(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("k", "v1", 0)))
	require.NoError(t, c.Set(ctx, entry.New("k", "v2", 0)))

	e, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", e.Value)
	require.Equal(t, int64(2), e.Version)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// TestCache_UpdateClearsStaleClassification drops old tag and source index
// references when a key is re-set without them.
func TestCache_UpdateClearsStaleClassification(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	e := entry.New("k", "v1", 0)
	e.Tags = []string{"news"}
	e.Source = "api"
	require.NoError(t, c.Set(ctx, e))
	require.NoError(t, c.Set(ctx, entry.New("k", "v2", 0)))

	n, err := c.DeleteByTag(ctx, "news")
	require.NoError(t, err)
	require.Zero(t, n, "stale tag no longer reaches the key")

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got.Tags)
	require.Empty(t, got.Source)
}

// TestCache_LRUEviction keeps the recently used key when full.
func TestCache_LRUEviction(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{MaxEntries: 2, Policy: config.PolicyLRU})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("a", "v", 0)))
	require.NoError(t, c.Set(ctx, entry.New("b", "v", 0)))

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, entry.New("c", "v", 0)))

	_, ok, _ = c.Get(ctx, "a")
	require.True(t, ok, "recently used key must survive")
	_, ok, _ = c.Get(ctx, "b")
	require.False(t, ok, "least recently used key must be evicted")
	_, ok, _ = c.Get(ctx, "c")
	require.True(t, ok)

	require.Equal(t, int64(1), c.Stats().Evictions)
}

// TestCache_LFUEviction evicts the least frequently accessed key.
func TestCache_LFUEviction(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{MaxEntries: 2, Policy: config.PolicyLFU})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("hot", "v", 0)))
	require.NoError(t, c.Set(ctx, entry.New("cold", "v", 0)))
	for i := 0; i < 3; i++ {
		_, _, _ = c.Get(ctx, "hot")
	}

	require.NoError(t, c.Set(ctx, entry.New("new", "v", 0)))

	_, ok, _ := c.Get(ctx, "hot")
	require.True(t, ok)
	_, ok, _ = c.Get(ctx, "cold")
	require.False(t, ok)
}

// TestCache_FIFOEviction evicts in insertion order regardless of access.
func TestCache_FIFOEviction(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{MaxEntries: 2, Policy: config.PolicyFIFO})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("first", "v", 0)))
	require.NoError(t, c.Set(ctx, entry.New("second", "v", 0)))
	_, _, _ = c.Get(ctx, "first") // access does not protect under fifo

	require.NoError(t, c.Set(ctx, entry.New("third", "v", 0)))

	_, ok, _ := c.Get(ctx, "first")
	require.False(t, ok)
	_, ok, _ = c.Get(ctx, "second")
	require.True(t, ok)
}

// TestCache_PriorityEviction evicts the lowest priority first.
func TestCache_PriorityEviction(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{MaxEntries: 2, Policy: config.PolicyPriority})
	ctx := context.Background()

	low := entry.New("low", "v", 0)
	low.Priority = 1
	high := entry.New("high", "v", 0)
	high.Priority = 10
	require.NoError(t, c.Set(ctx, high))
	require.NoError(t, c.Set(ctx, low))

	mid := entry.New("mid", "v", 0)
	mid.Priority = 5
	require.NoError(t, c.Set(ctx, mid))

	_, ok, _ := c.Get(ctx, "low")
	require.False(t, ok)
	_, ok, _ = c.Get(ctx, "high")
	require.True(t, ok)
	_, ok, _ = c.Get(ctx, "mid")
	require.True(t, ok)
}

// TestCache_ExpiredPurgedBeforePolicyEviction frees room from expired entries
// before evicting any live one.
func TestCache_ExpiredPurgedBeforePolicyEviction(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{MaxEntries: 2, Policy: config.PolicyLRU})
	clock := &fakeClock{now: time.Now()}
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("stale", "v", time.Minute)))
	require.NoError(t, c.Set(ctx, entry.New("live", "v", 0)))
	clock.Advance(2 * time.Minute)

	require.NoError(t, c.Set(ctx, entry.New("incoming", "v", 0)))

	_, ok, _ := c.Get(ctx, "live")
	require.True(t, ok, "live entry must survive while an expired one can go")
	_, ok, _ = c.Get(ctx, "incoming")
	require.True(t, ok)
	require.Equal(t, int64(0), c.Stats().Evictions)
}

// TestCache_SizeBound evicts until the size limit holds.
func TestCache_SizeBound(t *testing.T) {
	// Each string value costs 2 bytes per char: "0123456789" = 20 bytes.
	c := newTestCache(t, config.MemoryCfg{MaxSizeBytes: 50, Policy: config.PolicyLRU})
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("a", "0123456789", 0)))
	require.NoError(t, c.Set(ctx, entry.New("b", "0123456789", 0)))
	require.NoError(t, c.Set(ctx, entry.New("c", "0123456789", 0)))

	size, err := c.Size(ctx)
	require.NoError(t, err)
	require.LessOrEqual(t, size, int64(50))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, ok, _ := c.Get(ctx, "a")
	require.False(t, ok)
}

// TestCache_DeleteByTag removes exactly the tagged entries and cleans the
// inverted index.
func TestCache_DeleteByTag(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	tagged1 := entry.New("t1", "v", 0)
	tagged1.Tags = []string{"news", "home"}
	tagged2 := entry.New("t2", "v", 0)
	tagged2.Tags = []string{"news"}
	other := entry.New("o", "v", 0)
	other.Tags = []string{"home"}
	for _, e := range []*entry.Entry{tagged1, tagged2, other} {
		require.NoError(t, c.Set(ctx, e))
	}

	n, err := c.DeleteByTag(ctx, "news")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, ok, _ := c.Get(ctx, "o")
	require.True(t, ok)
	_, ok, _ = c.Get(ctx, "t1")
	require.False(t, ok)

	require.Empty(t, c.TagIndexKeys("news"))
	require.Equal(t, []string{"o"}, c.TagIndexKeys("home"))
}

// TestCache_DeleteBySource removes every entry recorded for the source.
func TestCache_DeleteBySource(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	fromAPI := entry.New("a", "v", 0)
	fromAPI.Source = "api"
	fromDisk := entry.New("b", "v", 0)
	fromDisk.Source = "disk"
	require.NoError(t, c.Set(ctx, fromAPI))
	require.NoError(t, c.Set(ctx, fromDisk))

	n, err := c.DeleteBySource(ctx, "api")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, _ := c.Get(ctx, "b")
	require.True(t, ok)
}

// TestCache_FindByFilter returns clones of matching entries.
func TestCache_FindByFilter(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	big := entry.New("big", "0123456789", 0)
	small := entry.New("small", "x", 0)
	require.NoError(t, c.Set(ctx, big))
	require.NoError(t, c.Set(ctx, small))

	found, err := c.FindByFilter(ctx, func(e *entry.Entry) bool { return e.Size > 10 })
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "big", found[0].Key)

	found[0].Value = "mutated"
	e, _, _ := c.Get(ctx, "big")
	require.Equal(t, "0123456789", e.Value)
}

// TestCache_Cleanup sweeps every expired entry in one pass.
func TestCache_Cleanup(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	clock := &fakeClock{now: time.Now()}
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, entry.New("e1", "v", time.Minute)))
	require.NoError(t, c.Set(ctx, entry.New("e2", "v", time.Minute)))
	require.NoError(t, c.Set(ctx, entry.New("keep", "v", 0)))
	clock.Advance(2 * time.Minute)

	n, err := c.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"keep"}, keys)
}

// TestCache_Events publishes hit, miss, set, evict and delete notifications.
func TestCache_Events(t *testing.T) {
	bus := events.NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(context.Background(), config.MemoryCfg{
		MaxEntries:      1,
		Policy:          config.PolicyLRU,
		CleanupInterval: time.Minute,
	}, logger, bus)
	t.Cleanup(func() { _ = c.Close() })

	var mu sync.Mutex
	var kinds []events.Kind
	unsubscribe := bus.Subscribe(func(ev events.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	defer unsubscribe()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, entry.New("a", "v", 0)))
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "nope")
	require.NoError(t, c.Set(ctx, entry.New("b", "v", 0))) // evicts a
	_, _ = c.Delete(ctx, "b")

	mu.Lock()
	got := append([]events.Kind(nil), kinds...)
	mu.Unlock()
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	require.Equal(t, []events.Kind{
		events.Delete, events.Evict, events.Hit, events.Miss, events.Set, events.Set,
	}, got)
}

// TestCache_Clear drops entries, indexes and the size accumulator.
func TestCache_Clear(t *testing.T) {
	c := newTestCache(t, config.MemoryCfg{})
	ctx := context.Background()

	tagged := entry.New("a", "v", 0)
	tagged.Tags = []string{"t"}
	require.NoError(t, c.Set(ctx, tagged))
	require.NoError(t, c.Clear(ctx))

	n, _ := c.Count(ctx)
	require.Zero(t, n)
	size, _ := c.Size(ctx)
	require.Zero(t, size)
	require.Empty(t, c.TagIndexKeys("t"))
}
