// Package predict learns key-transition patterns from access order (a
// first-order Markov model) and speculatively populates the cache with
// likely-next keys.
package predict

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/shared/rate"
)

// FetchFunc loads the value for a predicted key.
type FetchFunc func(ctx context.Context, key string) (any, error)

// StoreFunc persists a prefetched value; the cache manager installs one that
// tags entries with the reserved preCache tag.
type StoreFunc func(ctx context.Context, key string, value any) error

// Prediction pairs a candidate next key with its transition confidence.
type Prediction struct {
	Key        string
	Confidence float64
}

type PreCacher struct {
	cfg    *config.PredictCfg
	logger *slog.Logger
	fetch  FetchFunc

	mu sync.Mutex
	// transitions[from][to] counts observed consecutive accesses.
	transitions map[string]map[string]int
	// window is the bounded access history; transitions rolling off decay.
	window []string
	prev   string

	storeMu sync.RWMutex
	store   StoreFunc

	sf       singleflight.Group
	pacer    *rate.Pacer
	counters *preCacheCounters

	invokeCh chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(ctx context.Context, cfg *config.PredictCfg, logger *slog.Logger, fetch FetchFunc) *PreCacher {
	ctx, cancel := context.WithCancel(ctx)
	p := &PreCacher{
		cfg:         cfg,
		logger:      logger,
		fetch:       fetch,
		transitions: make(map[string]map[string]int),
		pacer:       rate.NewPacer(ctx, cfg.FetchRatePerSec),
		counters:    newPreCacheCounters(),
		invokeCh:    make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
	go p.worker()
	return p
}

// SetStore installs the callback that persists prefetched values.
func (p *PreCacher) SetStore(store StoreFunc) {
	p.storeMu.Lock()
	p.store = store
	p.storeMu.Unlock()
}

// RecordAccess advances the model with one observed access and nudges the
// background worker to prefetch.
func (p *PreCacher) RecordAccess(key string) {
	p.mu.Lock()
	if p.prev != "" && p.prev != key {
		row := p.transitions[p.prev]
		if row == nil {
			row = make(map[string]int)
			p.transitions[p.prev] = row
		}
		row[key]++
	}
	p.window = append(p.window, key)
	if len(p.window) > p.cfg.WindowSize {
		p.decayOldestLocked()
	}
	p.prev = key
	p.mu.Unlock()

	select {
	case p.invokeCh <- struct{}{}:
	default:
	}
}

// decayOldestLocked drops the oldest access and its transition so the model
// stays bounded by the sliding window.
func (p *PreCacher) decayOldestLocked() {
	from, to := p.window[0], p.window[1]
	p.window = p.window[1:]
	if from == to {
		return
	}
	if row, ok := p.transitions[from]; ok {
		if row[to] > 1 {
			row[to]--
		} else {
			delete(row, to)
			if len(row) == 0 {
				delete(p.transitions, from)
			}
		}
	}
}

// Predictions returns every candidate following the most recent access with
// confidence = count(prev->candidate) / sum(count(prev->*)), sorted by
// descending confidence and capped at MaxPredictions.
func (p *PreCacher) Predictions() []Prediction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.predictionsLocked()
}

func (p *PreCacher) predictionsLocked() []Prediction {
	row := p.transitions[p.prev]
	if len(row) == 0 {
		return nil
	}
	var total int
	for _, n := range row {
		total += n
	}
	out := make([]Prediction, 0, len(row))
	for key, n := range row {
		out = append(out, Prediction{Key: key, Confidence: float64(n) / float64(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > p.cfg.MaxPredictions {
		out = out[:p.cfg.MaxPredictions]
	}
	return out
}

// TriggerPreCache fetches and stores every prediction at or above the
// confidence threshold. Fetch and store failures are logged and skipped,
// never raised. Returns how many keys were stored.
func (p *PreCacher) TriggerPreCache(ctx context.Context) int {
	p.storeMu.RLock()
	store := p.store
	p.storeMu.RUnlock()
	if p.fetch == nil || store == nil {
		return 0
	}

	var stored int
	for _, pred := range p.Predictions() {
		if pred.Confidence < p.cfg.ConfidenceThreshold {
			break // sorted descending
		}
		if !p.pacer.Take() {
			return stored
		}
		p.counters.prefetches.Add(1)

		value, err, _ := p.sf.Do(pred.Key, func() (any, error) {
			return p.fetch(ctx, pred.Key)
		})
		if err != nil {
			p.counters.fetchErrors.Add(1)
			p.logger.Debug("prefetch fetch failed", "key", pred.Key, "error", err)
			continue
		}
		if err = store(ctx, pred.Key, value); err != nil {
			p.counters.storeErrors.Add(1)
			p.logger.Debug("prefetch store failed", "key", pred.Key, "error", err)
			continue
		}
		stored++
		p.counters.stored.Add(1)
	}
	return stored
}

func (p *PreCacher) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.invokeCh:
			p.TriggerPreCache(p.ctx)
		}
	}
}

// Metrics snapshots the prefetch counters.
func (p *PreCacher) Metrics() (prefetches, stored, fetchErrors, storeErrors int64) {
	return p.counters.snapshot()
}

func (p *PreCacher) Close() error {
	p.cancel()
	return nil
}
