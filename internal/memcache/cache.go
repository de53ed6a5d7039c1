// Package memcache implements the bounded in-process L1 tier: four eviction
// policies, lazy TTL expiry, tag/source inverted indexes and a background
// cleanup sweep.
package memcache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/entry"
	"github.com/stratacache/go-strata-cache/internal/events"
)

const tierName = "l1"

// item wraps a live entry with the sequence stamps eviction ordering relies
// on. Wall-clock timestamps stay on the entry for callers; sequence numbers
// give eviction a total order even when two ops land on the same tick.
type item struct {
	e         *entry.Entry
	createSeq uint64
	accessSeq uint64
}

type Cache struct {
	mu     sync.Mutex
	cfg    config.MemoryCfg
	logger *slog.Logger
	bus    *events.Bus

	items    map[string]*item
	byTag    map[string]map[string]struct{}
	bySource map[string]map[string]struct{}

	size int64  // summed estimated entry footprint
	seq  uint64 // monotonic op stamp for eviction tie-breaks

	counters *counters
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func New(ctx context.Context, cfg config.MemoryCfg, logger *slog.Logger, bus *events.Bus) *Cache {
	ctx, cancel := context.WithCancel(ctx)
	c := &Cache{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		items:    make(map[string]*item),
		byTag:    make(map[string]map[string]struct{}),
		bySource: make(map[string]map[string]struct{}),
		counters: newCounters(),
		now:      time.Now,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.janitor(ctx)
	return c
}

// Get returns the live entry and records the access. Expired entries are
// lazily evicted and counted as misses.
func (c *Cache) Get(_ context.Context, key string) (*entry.Entry, bool, error) {
	return c.lookup(key, true)
}

// Peek is Get without touching access stats.
func (c *Cache) Peek(_ context.Context, key string) (*entry.Entry, bool, error) {
	return c.lookup(key, false)
}

func (c *Cache) lookup(key string, touch bool) (*entry.Entry, bool, error) {
	c.mu.Lock()
	it, ok := c.items[key]
	if !ok {
		c.counters.misses.Add(1)
		c.mu.Unlock()
		c.bus.Publish(events.Event{Kind: events.Miss, Key: key, Tier: tierName})
		return nil, false, nil
	}
	if it.e.IsExpired(c.now()) {
		c.removeLocked(key, it)
		c.counters.misses.Add(1)
		c.counters.expirations.Add(1)
		c.mu.Unlock()
		c.bus.Publish(events.Event{Kind: events.Expire, Key: key, Tier: tierName})
		c.bus.Publish(events.Event{Kind: events.Miss, Key: key, Tier: tierName})
		return nil, false, nil
	}
	if touch {
		it.e.Touch(c.now())
		c.seq++
		it.accessSeq = c.seq
	}
	e := it.e
	c.counters.hits.Add(1)
	c.mu.Unlock()
	c.bus.Publish(events.Event{Kind: events.Hit, Key: key, Tier: tierName})
	return e, true, nil
}

// Set creates the entry when the key is absent, or updates it in place
// (value replaced, version bumped, TTL optionally reset). When the key is
// new and inserting would exceed MaxEntries or MaxSizeBytes, eviction runs
// before insertion: first pass purges already-expired entries, second pass
// applies the configured policy order until both limits hold.
func (c *Cache) Set(_ context.Context, e *entry.Entry) error {
	key := e.Key
	evicted := c.setEntry(e)

	c.bus.Publish(events.Event{Kind: events.Set, Key: key, Tier: tierName})
	for _, k := range evicted {
		c.bus.Publish(events.Event{Kind: events.Evict, Key: k, Tier: tierName})
	}
	return nil
}

func (c *Cache) setEntry(e *entry.Entry) (evicted []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters.sets.Add(1)
	c.seq++

	if it, ok := c.items[e.Key]; ok {
		c.unindexLocked(it.e)
		oldSize := it.e.Size
		it.e.UpdateValue(e.Value, ttlFrom(e, c.now()))
		it.e.Absorb(e)
		it.accessSeq = c.seq
		c.size += it.e.Size - oldSize
		c.indexLocked(it.e)
		return nil
	}

	if e.Expires == nil && c.cfg.DefaultTTL > 0 {
		exp := c.now().Add(c.cfg.DefaultTTL)
		e.Expires = &exp
	}

	evicted = c.makeRoomLocked(e.Size)

	it := &item{e: e, createSeq: c.seq, accessSeq: c.seq}
	c.items[e.Key] = it
	c.size += e.Size
	c.indexLocked(e)
	return evicted
}

// ttlFrom recovers the intended ttl of an incoming entry so an in-place
// update can reset the expiry the same way a fresh insert would.
func ttlFrom(e *entry.Entry, now time.Time) time.Duration {
	if e.Expires == nil {
		return 0
	}
	return e.Expires.Sub(now)
}

func (c *Cache) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return false, nil
	}
	if it.e.IsExpired(c.now()) {
		c.removeLocked(key, it)
		c.counters.expirations.Add(1)
		return false, nil
	}
	return true, nil
}

func (c *Cache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	it, ok := c.items[key]
	if ok {
		c.removeLocked(key, it)
	}
	c.mu.Unlock()
	if ok {
		c.bus.Publish(events.Event{Kind: events.Delete, Key: key, Tier: tierName})
	}
	return ok, nil
}

func (c *Cache) DeleteMany(ctx context.Context, keys []string) (int, error) {
	var n int
	for _, key := range keys {
		ok, _ := c.Delete(ctx, key)
		if ok {
			n++
		}
	}
	return n, nil
}

// DeleteByTag removes exactly the entries whose tag set contains tag,
// resolved through the inverted index rather than a scan.
func (c *Cache) DeleteByTag(_ context.Context, tag string) (int, error) {
	c.mu.Lock()
	keys := keysOf(c.byTag[tag])
	for _, key := range keys {
		if it, ok := c.items[key]; ok {
			c.removeLocked(key, it)
		}
	}
	c.mu.Unlock()
	for _, key := range keys {
		c.bus.Publish(events.Event{Kind: events.Delete, Key: key, Tier: tierName})
	}
	return len(keys), nil
}

func (c *Cache) DeleteBySource(_ context.Context, source string) (int, error) {
	c.mu.Lock()
	keys := keysOf(c.bySource[source])
	for _, key := range keys {
		if it, ok := c.items[key]; ok {
			c.removeLocked(key, it)
		}
	}
	c.mu.Unlock()
	for _, key := range keys {
		c.bus.Publish(events.Event{Kind: events.Delete, Key: key, Tier: tierName})
	}
	return len(keys), nil
}

// DeleteByFilter removes every entry the predicate matches. Filters are
// opaque, so this one is a scan by nature.
func (c *Cache) DeleteByFilter(_ context.Context, filter func(*entry.Entry) bool) (int, error) {
	c.mu.Lock()
	var keys []string
	for key, it := range c.items {
		if filter(it.e) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		c.removeLocked(key, c.items[key])
	}
	c.mu.Unlock()
	for _, key := range keys {
		c.bus.Publish(events.Event{Kind: events.Delete, Key: key, Tier: tierName})
	}
	return len(keys), nil
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.items = make(map[string]*item)
	c.byTag = make(map[string]map[string]struct{})
	c.bySource = make(map[string]map[string]struct{})
	c.size = 0
	c.mu.Unlock()
	return nil
}

func (c *Cache) Count(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), nil
}

func (c *Cache) Size(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size, nil
}

func (c *Cache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.items))
	for key := range c.items {
		keys = append(keys, key)
	}
	return keys, nil
}

// Entries returns clones of all live entries; mutations do not leak back.
func (c *Cache) Entries(_ context.Context) ([]*entry.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*entry.Entry, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, it.e.Clone())
	}
	return out, nil
}

func (c *Cache) FindByTag(_ context.Context, tag string) ([]*entry.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*entry.Entry
	for key := range c.byTag[tag] {
		if it, ok := c.items[key]; ok {
			out = append(out, it.e.Clone())
		}
	}
	return out, nil
}

func (c *Cache) FindBySource(_ context.Context, source string) ([]*entry.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*entry.Entry
	for key := range c.bySource[source] {
		if it, ok := c.items[key]; ok {
			out = append(out, it.e.Clone())
		}
	}
	return out, nil
}

func (c *Cache) FindByFilter(_ context.Context, filter func(*entry.Entry) bool) ([]*entry.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*entry.Entry
	for _, it := range c.items {
		if filter(it.e) {
			out = append(out, it.e.Clone())
		}
	}
	return out, nil
}

// Cleanup removes every expired entry and returns how many it removed.
// Also driven periodically by the janitor.
func (c *Cache) Cleanup(_ context.Context) (int, error) {
	now := c.now()
	c.mu.Lock()
	var keys []string
	for key, it := range c.items {
		if it.e.IsExpired(now) {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		c.removeLocked(key, c.items[key])
	}
	c.counters.expirations.Add(int64(len(keys)))
	c.mu.Unlock()
	for _, key := range keys {
		c.bus.Publish(events.Event{Kind: events.Expire, Key: key, Tier: tierName})
	}
	return len(keys), nil
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	count, size := len(c.items), c.size
	c.mu.Unlock()
	return c.counters.snapshot(count, size)
}

func (c *Cache) ResetStats() {
	c.counters.reset()
}

// Close stops the janitor. Idempotent.
func (c *Cache) Close() error {
	c.cancel()
	return nil
}

// removeLocked deletes the entry and every index reference. No dangling
// index entries survive a removal of any kind.
func (c *Cache) removeLocked(key string, it *item) {
	delete(c.items, key)
	c.size -= it.e.Size
	c.unindexLocked(it.e)
}

func (c *Cache) janitor(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, _ := c.Cleanup(ctx); n > 0 {
				c.logger.Debug("cleanup sweep removed expired entries", "tier", tierName, "removed", n)
			}
		}
	}
}

func keysOf(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}
