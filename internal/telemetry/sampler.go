package telemetry

import "github.com/stratacache/go-strata-cache/internal/manager"

// snapshot holds cumulative counters (monotonic).
type snapshot struct {
	hits        uint64
	misses      uint64
	sets        uint64
	evictions   uint64
	expirations uint64

	prefetches     uint64
	prefetchStored uint64
	prefetchErrs   uint64

	contextChanges uint64
}

func newSnapshot(s manager.Stats) snapshot {
	return snapshot{
		hits:        uint64(max(s.Memory.Hits, 0)),
		misses:      uint64(max(s.Memory.Misses, 0)),
		sets:        uint64(max(s.Memory.Sets, 0)),
		evictions:   uint64(max(s.Memory.Evictions, 0)),
		expirations: uint64(max(s.Memory.Expirations, 0)),

		prefetches:     uint64(max(s.Prefetches, 0)),
		prefetchStored: uint64(max(s.PrefetchStored, 0)),
		prefetchErrs:   uint64(max(s.PrefetchFetchErrs+s.PrefetchStoreErrs, 0)),

		contextChanges: uint64(max(s.ContextChanges, 0)),
	}
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:        delta(prev.hits, cur.hits),
		misses:      delta(prev.misses, cur.misses),
		sets:        delta(prev.sets, cur.sets),
		evictions:   delta(prev.evictions, cur.evictions),
		expirations: delta(prev.expirations, cur.expirations),

		prefetches:     delta(prev.prefetches, cur.prefetches),
		prefetchStored: delta(prev.prefetchStored, cur.prefetchStored),
		prefetchErrs:   delta(prev.prefetchErrs, cur.prefetchErrs),

		contextChanges: delta(prev.contextChanges, cur.contextChanges),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
