package predict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratacache/go-strata-cache/config"
)

func newTestPreCacher(t *testing.T, cfg *config.PredictCfg, fetch FetchFunc) *PreCacher {
	t.Helper()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.MaxPredictions <= 0 {
		cfg.MaxPredictions = 8
	}
	if cfg.FetchRatePerSec <= 0 {
		cfg.FetchRatePerSec = 100
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(context.Background(), cfg, logger, fetch)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// recorder captures stored prefetches.
type recorder struct {
	mu     sync.Mutex
	stored map[string]any
}

func newRecorder() *recorder {
	return &recorder{stored: make(map[string]any)}
}

func (r *recorder) store(_ context.Context, key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored[key] = value
	return nil
}

func (r *recorder) get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.stored[key]
	return v, ok
}

// TestPreCacher_LearnsTransitions predicts the key that followed the current
// one before.
func TestPreCacher_LearnsTransitions(t *testing.T) {
	p := newTestPreCacher(t, &config.PredictCfg{}, nil)

	for _, key := range []string{"a", "b", "c", "a", "b"} {
		p.RecordAccess(key)
	}

	preds := p.Predictions()
	require.Len(t, preds, 1)
	require.Equal(t, "c", preds[0].Key)
	require.Equal(t, 1.0, preds[0].Confidence)
}

// TestPreCacher_ConfidenceSplit splits confidence across observed successors.
func TestPreCacher_ConfidenceSplit(t *testing.T) {
	p := newTestPreCacher(t, &config.PredictCfg{}, nil)

	// a -> b three times, a -> c once.
	for _, key := range []string{"a", "b", "a", "b", "a", "b", "a", "c", "a"} {
		p.RecordAccess(key)
	}

	preds := p.Predictions()
	require.Len(t, preds, 2)
	require.Equal(t, "b", preds[0].Key)
	require.InDelta(t, 0.75, preds[0].Confidence, 1e-9)
	require.Equal(t, "c", preds[1].Key)
	require.InDelta(t, 0.25, preds[1].Confidence, 1e-9)
}

// TestPreCacher_SelfTransitionIgnored does not learn key -> same key.
func TestPreCacher_SelfTransitionIgnored(t *testing.T) {
	p := newTestPreCacher(t, &config.PredictCfg{}, nil)

	for _, key := range []string{"a", "a", "a"} {
		p.RecordAccess(key)
	}
	require.Empty(t, p.Predictions())
}

// TestPreCacher_WindowDecay forgets transitions that roll off the window.
func TestPreCacher_WindowDecay(t *testing.T) {
	p := newTestPreCacher(t, &config.PredictCfg{WindowSize: 3}, nil)

	for _, key := range []string{"a", "b", "x", "y", "x", "y"} {
		p.RecordAccess(key)
	}

	// The a->b observation has long rolled off; only recent pairs remain.
	p.mu.Lock()
	_, remembered := p.transitions["a"]
	p.mu.Unlock()
	require.False(t, remembered)

	preds := p.Predictions() // prev is y
	require.NotEmpty(t, preds)
	require.Equal(t, "x", preds[0].Key)
}

// TestPreCacher_MaxPredictionsCap truncates the candidate list.
func TestPreCacher_MaxPredictionsCap(t *testing.T) {
	p := newTestPreCacher(t, &config.PredictCfg{MaxPredictions: 2}, nil)

	for _, next := range []string{"b", "c", "d", "e"} {
		p.RecordAccess("hub")
		p.RecordAccess(next)
	}
	p.RecordAccess("hub")

	require.Len(t, p.Predictions(), 2)
}

// TestPreCacher_TriggerStoresConfident fetches and stores predictions at or
// above the threshold.
func TestPreCacher_TriggerStoresConfident(t *testing.T) {
	fetched := make(map[string]int)
	var mu sync.Mutex
	fetch := func(_ context.Context, key string) (any, error) {
		mu.Lock()
		fetched[key]++
		mu.Unlock()
		return "value:" + key, nil
	}
	p := newTestPreCacher(t, &config.PredictCfg{ConfidenceThreshold: 0.7}, fetch)

	rec := newRecorder()
	p.SetStore(rec.store)

	for _, key := range []string{"login", "dashboard", "login"} {
		p.RecordAccess(key)
	}

	stored := p.TriggerPreCache(context.Background())
	require.Equal(t, 1, stored)

	v, ok := rec.get("dashboard")
	require.True(t, ok)
	require.Equal(t, "value:dashboard", v)

	prefetches, storedCount, fetchErrs, storeErrs := p.Metrics()
	require.GreaterOrEqual(t, prefetches, int64(1))
	require.GreaterOrEqual(t, storedCount, int64(1))
	require.Zero(t, fetchErrs)
	require.Zero(t, storeErrs)
}

// TestPreCacher_BelowThresholdSkipped never prefetches uncertain candidates.
func TestPreCacher_BelowThresholdSkipped(t *testing.T) {
	fetch := func(_ context.Context, key string) (any, error) {
		return "v", nil
	}
	p := newTestPreCacher(t, &config.PredictCfg{ConfidenceThreshold: 0.7}, fetch)
	rec := newRecorder()
	p.SetStore(rec.store)

	// a -> b and a -> c at 0.5 each, both under the threshold.
	for _, key := range []string{"a", "b", "a", "c", "a"} {
		p.RecordAccess(key)
	}

	require.Zero(t, p.TriggerPreCache(context.Background()))
	_, ok := rec.get("b")
	require.False(t, ok)
}

// TestPreCacher_FetchFailuresSkipped logs and continues, never raising.
func TestPreCacher_FetchFailuresSkipped(t *testing.T) {
	fetch := func(_ context.Context, key string) (any, error) {
		return nil, errors.New("origin down")
	}
	p := newTestPreCacher(t, &config.PredictCfg{}, fetch)
	rec := newRecorder()
	p.SetStore(rec.store)

	for _, key := range []string{"a", "b", "a"} {
		p.RecordAccess(key)
	}

	require.Zero(t, p.TriggerPreCache(context.Background()))
	_, _, fetchErrs, _ := p.Metrics()
	require.GreaterOrEqual(t, fetchErrs, int64(1))
}

// TestPreCacher_NoStoreNoFetch is a no-op without both callbacks.
func TestPreCacher_NoStoreNoFetch(t *testing.T) {
	p := newTestPreCacher(t, &config.PredictCfg{}, nil)
	for _, key := range []string{"a", "b", "a"} {
		p.RecordAccess(key)
	}
	require.Zero(t, p.TriggerPreCache(context.Background()))
}
