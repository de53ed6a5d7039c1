package contextpolicy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/events"
)

// fakeProvider is a scriptable context source.
type fakeProvider struct {
	mu        sync.Mutex
	snapshot  map[string]string
	listeners []func(map[string]string)
}

func (p *fakeProvider) GetContext() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *fakeProvider) OnContextChange(listener func(map[string]string)) func() {
	p.mu.Lock()
	p.listeners = append(p.listeners, listener)
	p.mu.Unlock()
	return func() {}
}

func (p *fakeProvider) change(snapshot map[string]string) {
	p.mu.Lock()
	p.snapshot = snapshot
	listeners := make([]func(map[string]string), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()
	for _, l := range listeners {
		l(snapshot)
	}
}

func boolPtr(v bool) *bool { return &v }

func newTestManagement(t *testing.T, cfg *config.ContextCfg, provider *fakeProvider) *Management {
	t.Helper()
	if provider.snapshot == nil {
		provider.snapshot = map[string]string{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(context.Background(), cfg, logger, provider, events.NewBus())
}

// TestManagement_AdjustTTL composes rule and content-type multipliers.
func TestManagement_AdjustTTL(t *testing.T) {
	cfg := &config.ContextCfg{
		DefaultPolicy: config.ContentPolicy{TTL: time.Hour},
		ContentPolicies: map[string]config.ContentPolicy{
			"video": {TTL: time.Hour, TTLMultiplier: 2},
		},
		Rules: map[string]map[string]config.ContextRule{
			"networkType": {
				"cellular": {TTLMultiplier: 0.5},
				"wifi":     {TTLMultiplier: 1.5},
			},
			"batteryLevel": {
				"low": {TTLMultiplier: 0.5},
			},
		},
	}
	provider := &fakeProvider{snapshot: map[string]string{
		"networkType":  "cellular",
		"batteryLevel": "low",
	}}
	m := newTestManagement(t, cfg, provider)

	// 1h * 0.5 (cellular) * 0.5 (low battery) = 15m
	require.Equal(t, 15*time.Minute, m.AdjustTTL(time.Hour, "article"))
	// video additionally doubles: 30m
	require.Equal(t, 30*time.Minute, m.AdjustTTL(time.Hour, "video"))

	provider.change(map[string]string{"networkType": "wifi"})
	require.Equal(t, 90*time.Minute, m.AdjustTTL(time.Hour, "article"))
}

// TestManagement_PolicyFor resolves per-content-type base policy with the
// context-adjusted TTL.
func TestManagement_PolicyFor(t *testing.T) {
	cfg := &config.ContextCfg{
		DefaultPolicy: config.ContentPolicy{TTL: time.Minute, Priority: 1},
		ContentPolicies: map[string]config.ContentPolicy{
			"image": {TTL: 10 * time.Minute, Priority: 7},
		},
	}
	m := newTestManagement(t, cfg, &fakeProvider{})

	pol := m.PolicyFor("image")
	require.Equal(t, 10*time.Minute, pol.TTL)
	require.Equal(t, 7, pol.Priority)
	require.True(t, pol.ShouldCache)

	def := m.PolicyFor("unknown")
	require.Equal(t, time.Minute, def.TTL)
	require.Equal(t, 1, def.Priority)
}

// TestManagement_ShouldCache walks the resolution order: predicate, boolean,
// context veto, default true.
func TestManagement_ShouldCache(t *testing.T) {
	cfg := &config.ContextCfg{
		ContentPolicies: map[string]config.ContentPolicy{
			"tracking": {ShouldCache: boolPtr(false)},
			"realtime": {
				ShouldCache: boolPtr(false), // predicate must win over this
				ShouldCacheFunc: func(ctx map[string]string) bool {
					return ctx["userActivity"] == "idle"
				},
			},
		},
		Rules: map[string]map[string]config.ContextRule{
			"networkType": {
				"offline": {ShouldCache: boolPtr(false)},
			},
		},
	}
	provider := &fakeProvider{snapshot: map[string]string{"userActivity": "idle"}}
	m := newTestManagement(t, cfg, provider)

	require.True(t, m.ShouldCache("realtime"), "predicate wins")
	require.False(t, m.ShouldCache("tracking"), "boolean applies next")
	require.True(t, m.ShouldCache("article"), "default is cacheable")

	provider.change(map[string]string{"networkType": "offline", "userActivity": "active"})
	require.False(t, m.ShouldCache("article"), "active context rule vetoes")
	require.False(t, m.ShouldCache("realtime"), "predicate sees the new snapshot")
}

// TestManagement_CellularIdleScenario denies caching on an idle cellular
// device and allows it again on wifi.
func TestManagement_CellularIdleScenario(t *testing.T) {
	cfg := &config.ContextCfg{
		DefaultPolicy: config.ContentPolicy{
			TTL: time.Hour,
			ShouldCacheFunc: func(ctx map[string]string) bool {
				return !(ctx["networkType"] == "cellular" && ctx["userActivity"] == "idle")
			},
		},
	}
	provider := &fakeProvider{snapshot: map[string]string{
		"networkType":  "cellular",
		"userActivity": "idle",
	}}
	m := newTestManagement(t, cfg, provider)

	require.False(t, m.PolicyFor("article").ShouldCache)

	provider.change(map[string]string{
		"networkType":  "wifi",
		"userActivity": "idle",
	})
	require.True(t, m.PolicyFor("article").ShouldCache)
}

// TestManagement_ChangeTracking counts changes and publishes events.
func TestManagement_ChangeTracking(t *testing.T) {
	bus := events.NewBus()
	var mu sync.Mutex
	var got []events.Kind
	bus.Subscribe(func(ev events.Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		mu.Unlock()
	})

	provider := &fakeProvider{snapshot: map[string]string{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(context.Background(), &config.ContextCfg{}, logger, provider, bus)

	provider.change(map[string]string{"timeOfDay": "night"})
	provider.change(map[string]string{"timeOfDay": "morning"})

	require.Equal(t, int64(2), m.Changes())
	require.Equal(t, map[string]string{"timeOfDay": "morning"}, m.Snapshot())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []events.Kind{events.ContextChange, events.ContextChange}, got)
}
