package memcache

import (
	"sync/atomic"
	"time"
)

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
	startedAt   atomic.Int64 // unix nano
}

func newCounters() *counters {
	c := &counters{}
	c.startedAt.Store(time.Now().UnixNano())
	return c
}

func (c *counters) reset() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	c.evictions.Store(0)
	c.expirations.Store(0)
	c.startedAt.Store(time.Now().UnixNano())
}

type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	Expirations int64
	Entries     int
	SizeBytes   int64
	StartedAt   time.Time
}

// HitRatio is hits/(hits+misses), zero when no lookups happened yet.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *counters) snapshot(entries int, size int64) Stats {
	return Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Sets:        c.sets.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Entries:     entries,
		SizeBytes:   size,
		StartedAt:   time.Unix(0, c.startedAt.Load()),
	}
}
