// Package manager composes the cache tiers and features: it owns write-policy
// semantics, hit promotion, context-derived TTLs and the access feed into
// predictive pre-caching.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
	"github.com/stratacache/go-strata-cache/internal/codec"
	"github.com/stratacache/go-strata-cache/internal/contextpolicy"
	"github.com/stratacache/go-strata-cache/internal/entry"
	"github.com/stratacache/go-strata-cache/internal/events"
	"github.com/stratacache/go-strata-cache/internal/memcache"
	"github.com/stratacache/go-strata-cache/internal/predict"
)

// Tier is what the manager requires of the persistent and distributed tiers.
type Tier interface {
	Get(ctx context.Context, key string) (*entry.Entry, bool, error)
	Set(ctx context.Context, e *entry.Entry) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMany(ctx context.Context, keys []string) (int, error)
	DeleteByTag(ctx context.Context, tag string) (int, error)
	DeleteBySource(ctx context.Context, source string) (int, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Size(ctx context.Context) (int64, error)
	Keys(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context) (int, error)
	Close() error
}

// flusher is satisfied by tiers with a durable index to force out.
type flusher interface {
	Flush(ctx context.Context) error
}

type (
	Compressor = codec.Compressor
	Encryptor  = codec.Encryptor
	FetchFunc  = predict.FetchFunc
)

// PreCacheTag marks speculative entries stored by predictive pre-caching so
// downstream consumers can tell them from demand-fetched ones.
const PreCacheTag = "preCache"

type Deps struct {
	L1        *memcache.Cache
	L2        Tier // nil when the persistent tier is disabled
	L3        Tier // nil when the distributed tier is disabled
	Policy    *contextpolicy.Management
	Predictor *predict.PreCacher
	Bus       *events.Bus
}

type Manager struct {
	cfg    config.ManagerCfg
	logger *slog.Logger

	l1        *memcache.Cache
	l2        Tier
	l3        Tier
	policy    *contextpolicy.Management
	predictor *predict.PreCacher
	bus       *events.Bus

	queue *writebackQueue
	sf    singleflight.Group

	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func New(ctx context.Context, cfg config.ManagerCfg, logger *slog.Logger, deps Deps) (*Manager, error) {
	if deps.L1 == nil {
		return nil, fmt.Errorf("%w: memory tier is required", cacheerrs.ErrValidation)
	}

	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		l1:        deps.L1,
		l2:        deps.L2,
		l3:        deps.L3,
		policy:    deps.Policy,
		predictor: deps.Predictor,
		bus:       deps.Bus,
		queue:     newWritebackQueue(),
		cancel:    cancel,
	}

	if m.predictor != nil {
		m.predictor.SetStore(m.storePrefetched)
	}
	if cfg.WritePolicy == config.WriteBack {
		go m.flushWorker(ctx)
	}
	return m, nil
}

// Get probes L1 -> L2 -> L3 in order, promoting hits upward. Only the first
// tier hit serves the read.
func (m *Manager) Get(ctx context.Context, key string, opts ...GetOption) (any, bool, error) {
	o := applyGetOptions(opts)

	e, ok, err := m.getEntry(ctx, key, o)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		if o.throwOnMiss {
			return nil, false, fmt.Errorf("%w: %s", cacheerrs.ErrMiss, key)
		}
		return nil, false, nil
	}
	return e.Value, true, nil
}

// GetEntry is Get with metadata: it returns a clone of the hit entry.
func (m *Manager) GetEntry(ctx context.Context, key string, opts ...GetOption) (*entry.Entry, bool, error) {
	o := applyGetOptions(opts)
	e, ok, err := m.getEntry(ctx, key, o)
	if err != nil || !ok {
		if !ok && err == nil && o.throwOnMiss {
			err = fmt.Errorf("%w: %s", cacheerrs.ErrMiss, key)
		}
		return nil, ok, err
	}
	return e.Clone(), true, nil
}

func (m *Manager) getEntry(ctx context.Context, key string, o getOptions) (*entry.Entry, bool, error) {
	if !o.peek {
		defer m.recordAccess(key)
	}

	var (
		e   *entry.Entry
		ok  bool
		err error
	)
	if o.peek {
		e, ok, err = m.l1.Peek(ctx, key)
	} else {
		e, ok, err = m.l1.Get(ctx, key)
	}
	if err != nil || ok {
		return e, ok, err
	}

	if m.l2 != nil {
		e, ok, err = m.l2.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			m.promote(ctx, e, m.l1)
			return e, true, nil
		}
	}

	if m.l3 != nil {
		e, ok, err = m.l3.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if ok {
			if m.l2 != nil {
				m.promote(ctx, e, m.l2)
			}
			m.promote(ctx, e, m.l1)
			return e, true, nil
		}
	}

	return nil, false, nil
}

// promote copies a lower-tier hit into a faster tier. Promotion failures are
// logged, never surfaced: the read already has its value.
func (m *Manager) promote(ctx context.Context, e *entry.Entry, into Tier) {
	if err := into.Set(ctx, e.Clone()); err != nil {
		m.logger.Warn("tier promotion failed", "key", e.Key, "error", err)
	}
}

// GetOrFetch returns the cached value or loads it through fetch on a miss.
// Concurrent misses for the same key share one fetch.
func (m *Manager) GetOrFetch(ctx context.Context, key string, fetch FetchFunc, opts ...SetOption) (any, error) {
	if v, ok, err := m.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}

	v, err, _ := m.sf.Do(key, func() (any, error) {
		value, err := fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		if err = m.Set(ctx, key, value, opts...); err != nil {
			return nil, err
		}
		return value, nil
	})
	return v, err
}

// Set applies the effective TTL from context-aware management, then writes
// per the configured write policy.
func (m *Manager) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	return m.set(ctx, key, value, applySetOptions(opts), true)
}

// set is the shared write path. Prefetch stores pass record=false so
// speculative writes cannot feed the access model back into itself.
func (m *Manager) set(ctx context.Context, key string, value any, o setOptions, record bool) error {
	// The access model learns from every attempted set, including ones the
	// context policy vetoes below.
	if record {
		defer m.recordAccess(key)
	}

	ttl := o.ttl
	priority := o.priority
	if m.policy != nil {
		pol := m.policy.PolicyFor(o.contentType)
		if !pol.ShouldCache {
			return nil
		}
		if !o.ttlSet {
			ttl = pol.TTL
		}
		if !o.prioritySet {
			priority = pol.Priority
		}
	}

	e := entry.New(key, value, ttl)
	e.Type = o.contentType
	e.Tags = o.tags
	e.Source = o.source
	e.Priority = priority
	e.Dependencies = o.dependencies

	switch m.cfg.WritePolicy {
	case config.WriteBack:
		if err := m.l1.Set(ctx, e); err != nil {
			return err
		}
		if m.hasLowerTiers() {
			m.queue.enqueue(e.Clone(), time.Now())
		}
		return nil
	case config.WriteAround:
		return m.setLowerTiers(ctx, e)
	default: // config.WriteThrough
		if err := m.l1.Set(ctx, e); err != nil {
			return err
		}
		return m.setLowerTiers(ctx, e)
	}
}

func (m *Manager) setLowerTiers(ctx context.Context, e *entry.Entry) error {
	if m.l2 != nil {
		if err := m.l2.Set(ctx, e.Clone()); err != nil {
			return err
		}
	}
	if m.l3 != nil {
		if err := m.l3.Set(ctx, e.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) hasLowerTiers() bool {
	return m.l2 != nil || m.l3 != nil
}

// Has checks the tiers in probe order without recording an access.
func (m *Manager) Has(ctx context.Context, key string) bool {
	if ok, _ := m.l1.Has(ctx, key); ok {
		return true
	}
	if m.l2 != nil {
		if ok, _ := m.l2.Has(ctx, key); ok {
			return true
		}
	}
	if m.l3 != nil {
		if ok, _ := m.l3.Has(ctx, key); ok {
			return true
		}
	}
	return false
}

// Delete removes the key from every configured tier and from the pending
// write-back queue so a queued value cannot resurrect it.
func (m *Manager) Delete(ctx context.Context, key string) error {
	m.queue.remove(key)
	_, err := m.l1.Delete(ctx, key)
	if m.l2 != nil {
		if _, e2 := m.l2.Delete(ctx, key); e2 != nil {
			err = errors.Join(err, e2)
		}
	}
	if m.l3 != nil {
		if _, e3 := m.l3.Delete(ctx, key); e3 != nil {
			err = errors.Join(err, e3)
		}
	}
	return err
}

func (m *Manager) DeleteByTag(ctx context.Context, tag string) (int, error) {
	n, err := m.l1.DeleteByTag(ctx, tag)
	if m.l2 != nil {
		n2, e2 := m.l2.DeleteByTag(ctx, tag)
		n += n2
		err = errors.Join(err, e2)
	}
	if m.l3 != nil {
		n3, e3 := m.l3.DeleteByTag(ctx, tag)
		n += n3
		err = errors.Join(err, e3)
	}
	return n, err
}

func (m *Manager) DeleteBySource(ctx context.Context, source string) (int, error) {
	n, err := m.l1.DeleteBySource(ctx, source)
	if m.l2 != nil {
		n2, e2 := m.l2.DeleteBySource(ctx, source)
		n += n2
		err = errors.Join(err, e2)
	}
	if m.l3 != nil {
		n3, e3 := m.l3.DeleteBySource(ctx, source)
		n += n3
		err = errors.Join(err, e3)
	}
	return n, err
}

func (m *Manager) Clear(ctx context.Context) error {
	m.queue.clear()
	err := m.l1.Clear(ctx)
	if m.l2 != nil {
		err = errors.Join(err, m.l2.Clear(ctx))
	}
	if m.l3 != nil {
		err = errors.Join(err, m.l3.Clear(ctx))
	}
	return err
}

// Flush forces immediate propagation of the entire write-back queue and
// flushes durable tier indexes.
func (m *Manager) Flush(ctx context.Context) error {
	err := m.flushPending(ctx, time.Time{})
	if f, ok := m.l2.(flusher); ok {
		err = errors.Join(err, f.Flush(ctx))
	}
	return err
}

// TriggerPreCache runs one synchronous prefetch pass; returns how many keys
// were speculatively stored.
func (m *Manager) TriggerPreCache(ctx context.Context) int {
	if m.predictor == nil {
		return 0
	}
	return m.predictor.TriggerPreCache(ctx)
}

// storePrefetched persists a speculative value tagged preCache through the
// regular write path.
func (m *Manager) storePrefetched(ctx context.Context, key string, value any) error {
	return m.set(ctx, key, value, setOptions{tags: []string{PreCacheTag}}, false)
}

func (m *Manager) recordAccess(key string) {
	if m.predictor != nil {
		m.predictor.RecordAccess(key)
	}
}

// Close is idempotent: drains the write-back queue, stops workers and closes
// the tiers.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := m.flushPending(drainCtx, time.Time{})

		m.cancel()

		err = errors.Join(err, m.l1.Close())
		if m.l2 != nil {
			err = errors.Join(err, m.l2.Close())
		}
		if m.l3 != nil {
			err = errors.Join(err, m.l3.Close())
		}
		if m.predictor != nil {
			err = errors.Join(err, m.predictor.Close())
		}
		m.closeErr = err
	})
	return m.closeErr
}
