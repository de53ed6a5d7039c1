package manager

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/stratacache/go-strata-cache/internal/entry"
)

// writebackQueue holds writes awaiting propagation to lower tiers. Flush
// order is FIFO across distinct keys; a newer set for an already-queued key
// supersedes the queued value in place (last write wins, no duplicate
// propagation).
type pendingWrite struct {
	e          *entry.Entry
	elem       *list.Element
	enqueuedAt time.Time
}

type writebackQueue struct {
	mu      sync.Mutex
	order   *list.List // element values are keys
	pending map[string]*pendingWrite
}

func newWritebackQueue() *writebackQueue {
	return &writebackQueue{
		order:   list.New(),
		pending: make(map[string]*pendingWrite),
	}
}

func (q *writebackQueue) enqueue(e *entry.Entry, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.pending[e.Key]; ok {
		p.e = e // supersede, keep queue position and delay clock
		return
	}
	elem := q.order.PushBack(e.Key)
	q.pending[e.Key] = &pendingWrite{e: e, elem: elem, enqueuedAt: now}
}

func (q *writebackQueue) remove(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if p, ok := q.pending[key]; ok {
		q.order.Remove(p.elem)
		delete(q.pending, key)
	}
}

func (q *writebackQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.order.Init()
	q.pending = make(map[string]*pendingWrite)
}

func (q *writebackQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}

// dequeueDue pops, in FIFO order, every entry enqueued at or before cutoff.
// A zero cutoff drains the whole queue.
func (q *writebackQueue) dequeueDue(cutoff time.Time) []*entry.Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*entry.Entry
	for elem := q.order.Front(); elem != nil; {
		key := elem.Value.(string)
		p := q.pending[key]
		if !cutoff.IsZero() && p.enqueuedAt.After(cutoff) {
			elem = elem.Next()
			continue
		}
		next := elem.Next()
		q.order.Remove(elem)
		delete(q.pending, key)
		due = append(due, p.e)
		elem = next
	}
	return due
}

// flushWorker periodically propagates due write-back entries.
func (m *Manager) flushWorker(ctx context.Context) {
	tick := m.cfg.WriteBackDelay / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.flushPending(ctx, time.Now().Add(-m.cfg.WriteBackDelay)); err != nil {
				m.logger.Warn("write-back flush pass had failures", "error", err)
			}
		}
	}
}

// flushPending propagates queued entries to the lower tiers. A zero cutoff
// flushes everything. Per-entry failures are logged and the pass continues
// with remaining entries.
func (m *Manager) flushPending(ctx context.Context, cutoff time.Time) error {
	var firstErr error
	for _, e := range m.queue.dequeueDue(cutoff) {
		if err := m.setLowerTiers(ctx, e); err != nil {
			m.logger.Warn("write-back propagation failed", "key", e.Key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// PendingWrites reports the current write-back queue depth.
func (m *Manager) PendingWrites() int {
	return m.queue.len()
}
