package stratacache

import (
	"context"
	"io"
	"log/slog"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/adapter/redisadapter"
	"github.com/stratacache/go-strata-cache/internal/contextpolicy"
	"github.com/stratacache/go-strata-cache/internal/diskcache"
	"github.com/stratacache/go-strata-cache/internal/events"
	"github.com/stratacache/go-strata-cache/internal/manager"
	"github.com/stratacache/go-strata-cache/internal/memcache"
	"github.com/stratacache/go-strata-cache/internal/predict"
	"github.com/stratacache/go-strata-cache/internal/remotecache"
	"github.com/stratacache/go-strata-cache/internal/telemetry"
)

// FetchFunc loads a value for a key on a cache miss or a prefetch trigger.
type FetchFunc = manager.FetchFunc

// Event re-exports the notification payload delivered to subscribed listeners.
type Event = events.Event

// Listener receives cache notifications (hit/miss/set/evict/delete/contextChange).
type Listener = events.Listener

// Adapter is the remote KV store contract backing the distributed tier.
type Adapter = remotecache.Adapter

// ContextProvider supplies live environment signals to context-aware TTL policy.
type ContextProvider = contextpolicy.Provider

type StrataCache interface {
	Get(ctx context.Context, key string, opts ...GetOption) (any, bool, error)
	GetOrFetch(ctx context.Context, key string, fetch FetchFunc, opts ...SetOption) (any, error)
	Set(ctx context.Context, key string, value any, opts ...SetOption) error
	Has(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
	DeleteByTag(ctx context.Context, tag string) (int, error)
	DeleteBySource(ctx context.Context, source string) (int, error)
	Clear(ctx context.Context) error
	Flush(ctx context.Context) error
	TriggerPreCache(ctx context.Context) int
	Stats() manager.Stats
	Subscribe(l Listener) (unsubscribe func())
	io.Closer
}

// Cache composes the memory tier with the optional persistent and distributed
// tiers plus context-aware TTL policy and predictive pre-caching.
type Cache struct {
	*manager.Manager
	bus       *events.Bus
	telemeter *telemetry.Logs
	cls       context.CancelFunc
}

// Options carries the collaborators that cannot be expressed in YAML config.
type Options struct {
	// Adapter backs the distributed tier. Required when cfg.Distributed is
	// set and cfg.Distributed.RedisAddr is empty.
	Adapter Adapter
	// Provider supplies context signals. Nil disables context-aware policy
	// even when cfg.Context is set.
	Provider ContextProvider
	// Compressor and Encryptor override the codec strategies derived from
	// config for the persistent and distributed tiers.
	Compressor manager.Compressor
	Encryptor  manager.Encryptor
	// Fetch is invoked by predictive pre-caching to load predicted keys.
	Fetch FetchFunc
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	bus := events.NewBus()

	l1 := memcache.New(ctx, cfg.Memory, logger, bus)

	var l2 manager.Tier
	if cfg.Persistent.Enabled() {
		disk, err := diskcache.New(ctx, cfg.Persistent, logger, diskcache.Codec{
			Compressor: opts.Compressor,
			Encryptor:  opts.Encryptor,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		l2 = disk
	}

	var l3 manager.Tier
	if cfg.Distributed.Enabled() {
		adapter := opts.Adapter
		if adapter == nil && cfg.Distributed.RedisAddr != "" {
			adapter = redisadapter.NewFromAddr(
				cfg.Distributed.RedisAddr,
				cfg.Distributed.RedisPassword,
				cfg.Distributed.RedisDB,
			)
		}
		if adapter == nil {
			cancel()
			return nil, errAdapterRequired
		}
		remote, err := remotecache.New(ctx, cfg.Distributed, logger, adapter, remotecache.Codec{
			Compressor: opts.Compressor,
			Encryptor:  opts.Encryptor,
		})
		if err != nil {
			cancel()
			return nil, err
		}
		l3 = remote
	}

	var policy *contextpolicy.Management
	if cfg.Context.Enabled() && opts.Provider != nil {
		policy = contextpolicy.New(ctx, cfg.Context, logger, opts.Provider, bus)
	}

	var predictor *predict.PreCacher
	if cfg.Predict.Enabled() {
		predictor = predict.New(ctx, cfg.Predict, logger, opts.Fetch)
	}

	mgr, err := manager.New(ctx, cfg.Manager, logger, manager.Deps{
		L1:        l1,
		L2:        l2,
		L3:        l3,
		Policy:    policy,
		Predictor: predictor,
		Bus:       bus,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	var telemeter *telemetry.Logs
	if cfg.Manager.TelemetryEnabled {
		telemeter = telemetry.New(ctx, logger, mgr, cfg.Manager.TelemetryInterval)
	}

	return &Cache{Manager: mgr, bus: bus, telemeter: telemeter, cls: cancel}, nil
}

func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	return c.bus.Subscribe(l)
}

// Close is idempotent: it stops background workers (cleanup sweep, write-back
// flush, telemetry) and releases tier resources.
func (c *Cache) Close() error {
	err := c.Manager.Close()
	c.cls()
	return err
}
