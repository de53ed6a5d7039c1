package manager

import (
	"context"

	"github.com/stratacache/go-strata-cache/internal/memcache"
)

// Stats aggregates the observable state of the whole engine: the memory tier
// counters, the write-back backlog, the predictive pre-caching metrics and
// how many times the runtime context changed.
type Stats struct {
	Memory memcache.Stats

	PendingWrites int

	Prefetches        int64
	PrefetchStored    int64
	PrefetchFetchErrs int64
	PrefetchStoreErrs int64

	ContextChanges int64
}

func (m *Manager) Stats() Stats {
	s := Stats{
		Memory:        m.l1.Stats(),
		PendingWrites: m.queue.len(),
	}
	if m.predictor != nil {
		s.Prefetches, s.PrefetchStored, s.PrefetchFetchErrs, s.PrefetchStoreErrs = m.predictor.Metrics()
	}
	if m.policy != nil {
		s.ContextChanges = m.policy.Changes()
	}
	return s
}

// TierCounts reports how many entries each configured tier currently holds.
// Disabled tiers report zero.
func (m *Manager) TierCounts(ctx context.Context) (l1, l2, l3 int) {
	l1, _ = m.l1.Count(ctx)
	if m.l2 != nil {
		l2, _ = m.l2.Count(ctx)
	}
	if m.l3 != nil {
		l3, _ = m.l3.Count(ctx)
	}
	return l1, l2, l3
}
