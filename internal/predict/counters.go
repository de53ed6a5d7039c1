package predict

import "sync/atomic"

type preCacheCounters struct {
	prefetches  atomic.Int64
	stored      atomic.Int64
	fetchErrors atomic.Int64
	storeErrors atomic.Int64
}

func newPreCacheCounters() *preCacheCounters {
	return &preCacheCounters{}
}

func (c *preCacheCounters) snapshot() (prefetches, stored, fetchErrors, storeErrors int64) {
	return c.prefetches.Load(), c.stored.Load(), c.fetchErrors.Load(), c.storeErrors.Load()
}
