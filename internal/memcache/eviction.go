package memcache

import (
	"sort"

	"github.com/stratacache/go-strata-cache/config"
)

// makeRoomLocked frees exactly enough capacity for an incoming entry of
// incomingSize bytes. First pass purges already-expired entries; second pass
// evicts in strict policy order until both MaxEntries and MaxSizeBytes hold.
// Policy ordering is applied uniformly for all cache sizes; the most
// recently accessed key enjoys no special protection.
func (c *Cache) makeRoomLocked(incomingSize int64) (evicted []string) {
	if !c.overLimitLocked(incomingSize) {
		return nil
	}

	// Pass 1: expired entries go first, regardless of policy.
	now := c.now()
	for key, it := range c.items {
		if !c.overLimitLocked(incomingSize) {
			return evicted
		}
		if it.e.IsExpired(now) {
			c.removeLocked(key, it)
			c.counters.expirations.Add(1)
			evicted = append(evicted, key)
		}
	}
	if !c.overLimitLocked(incomingSize) {
		return evicted
	}

	// Pass 2: policy order over the remaining live entries.
	for _, it := range c.candidateOrderLocked() {
		if !c.overLimitLocked(incomingSize) {
			break
		}
		c.removeLocked(it.e.Key, it)
		c.counters.evictions.Add(1)
		evicted = append(evicted, it.e.Key)
	}
	return evicted
}

func (c *Cache) overLimitLocked(incomingSize int64) bool {
	if c.cfg.MaxEntries > 0 && len(c.items)+1 > c.cfg.MaxEntries {
		return true
	}
	if c.cfg.MaxSizeBytes > 0 && c.size+incomingSize > c.cfg.MaxSizeBytes {
		return true
	}
	return false
}

// candidateOrderLocked sorts all live entries into eviction order:
//
//	lru:      ascending last access
//	lfu:      ascending access count
//	fifo:     ascending creation
//	priority: ascending priority, ties broken by ascending last access
//
// Sequence stamps break wall-clock ties so the order is total.
func (c *Cache) candidateOrderLocked() []*item {
	candidates := make([]*item, 0, len(c.items))
	for _, it := range c.items {
		candidates = append(candidates, it)
	}

	var less func(a, b *item) bool
	switch c.cfg.Policy {
	case config.PolicyLFU:
		less = func(a, b *item) bool {
			if a.e.AccessCount != b.e.AccessCount {
				return a.e.AccessCount < b.e.AccessCount
			}
			return a.accessSeq < b.accessSeq
		}
	case config.PolicyFIFO:
		less = func(a, b *item) bool {
			if !a.e.Created.Equal(b.e.Created) {
				return a.e.Created.Before(b.e.Created)
			}
			return a.createSeq < b.createSeq
		}
	case config.PolicyPriority:
		less = func(a, b *item) bool {
			if a.e.Priority != b.e.Priority {
				return a.e.Priority < b.e.Priority
			}
			return lessByAccess(a, b)
		}
	default: // config.PolicyLRU
		less = lessByAccess
	}

	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })
	return candidates
}

func lessByAccess(a, b *item) bool {
	at, bt := a.e.LastAccessed, b.e.LastAccessed
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.accessSeq < b.accessSeq
}
