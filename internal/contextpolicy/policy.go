// Package contextpolicy computes effective TTLs and cache/no-cache decisions
// from live environment signals (network type, battery level, time of day,
// user activity, device type) supplied by an external context provider.
package contextpolicy

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/events"
)

// Provider supplies context snapshots and change notifications.
type Provider interface {
	GetContext() map[string]string
	// OnContextChange registers a listener for snapshot changes and returns
	// an unsubscribe func.
	OnContextChange(listener func(map[string]string)) (unsubscribe func())
}

// Policy is the resolved cache policy for one content type.
type Policy struct {
	TTL         time.Duration
	Priority    int
	ShouldCache bool
}

type Management struct {
	cfg    *config.ContextCfg
	logger *slog.Logger
	bus    *events.Bus

	mu       sync.RWMutex
	snapshot map[string]string

	changes     atomic.Int64
	unsubscribe func()
}

func New(ctx context.Context, cfg *config.ContextCfg, logger *slog.Logger, provider Provider, bus *events.Bus) *Management {
	m := &Management{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		snapshot: provider.GetContext(),
	}
	m.unsubscribe = provider.OnContextChange(m.onChange)
	go func() {
		<-ctx.Done()
		m.unsubscribe()
	}()
	return m
}

func (m *Management) onChange(snapshot map[string]string) {
	m.mu.Lock()
	m.snapshot = snapshot
	m.mu.Unlock()
	m.changes.Add(1)
	m.logger.Debug("cache context changed", "signals", len(snapshot))
	m.bus.Publish(events.Event{Kind: events.ContextChange})
}

// Changes reports how many context change notifications were observed.
func (m *Management) Changes() int64 {
	return m.changes.Load()
}

// Snapshot returns a copy of the current context signals.
func (m *Management) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.snapshot))
	for k, v := range m.snapshot {
		out[k] = v
	}
	return out
}

// PolicyFor resolves the base policy for a content type (content-type
// specific, else default) and applies the context-adjusted TTL.
func (m *Management) PolicyFor(contentType string) Policy {
	base := m.basePolicy(contentType)
	return Policy{
		TTL:         m.AdjustTTL(base.TTL, contentType),
		Priority:    base.Priority,
		ShouldCache: m.ShouldCache(contentType),
	}
}

func (m *Management) basePolicy(contentType string) config.ContentPolicy {
	if p, ok := m.cfg.ContentPolicies[contentType]; ok {
		return p
	}
	return m.cfg.DefaultPolicy
}

// AdjustTTL composes a multiplicative TTL factor: every live
// (contextKey, contextValue) pair with a matching rule contributes its
// multiplier, then the content type's own multiplier applies if present.
func (m *Management) AdjustTTL(base time.Duration, contentType string) time.Duration {
	factor := 1.0

	m.mu.RLock()
	for key, value := range m.snapshot {
		if rules, ok := m.cfg.Rules[key]; ok {
			if rule, ok := rules[value]; ok && rule.TTLMultiplier != 0 {
				factor *= rule.TTLMultiplier
			}
		}
	}
	m.mu.RUnlock()

	if p := m.basePolicy(contentType); p.TTLMultiplier != 0 {
		factor *= p.TTLMultiplier
	}

	return time.Duration(math.Round(float64(base) * factor))
}

// ShouldCache resolution order: a content-type predicate wins, then its
// boolean, then any active context value vetoing caching, then true.
func (m *Management) ShouldCache(contentType string) bool {
	p := m.basePolicy(contentType)

	if p.ShouldCacheFunc != nil {
		return p.ShouldCacheFunc(m.Snapshot())
	}
	if p.ShouldCache != nil {
		return *p.ShouldCache
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, value := range m.snapshot {
		if rules, ok := m.cfg.Rules[key]; ok {
			if rule, ok := rules[value]; ok && rule.ShouldCache != nil && !*rule.ShouldCache {
				return false
			}
		}
	}
	return true
}
