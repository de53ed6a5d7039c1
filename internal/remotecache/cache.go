// Package remotecache implements the adapter-backed L3 tier. Remote stores
// typically lack secondary indexes, so tag and source indexes are emulated
// as adapter-resident list values read-modify-written alongside the entry.
package remotecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
	"github.com/stratacache/go-strata-cache/internal/codec"
	"github.com/stratacache/go-strata-cache/internal/entry"
)

// Codec mirrors the persistent tier's strategy override shape.
type Codec struct {
	Compressor codec.Compressor
	Encryptor  codec.Encryptor
}

type Cache struct {
	cfg      *config.DistributedCfg
	adapter  Adapter
	pipeline codec.Pipeline
	logger   *slog.Logger

	// idxMu serializes index list read-modify-write cycles so concurrent
	// writers cannot lose each other's membership updates.
	idxMu    sync.Mutex
	counters *counters
}

func New(ctx context.Context, cfg *config.DistributedCfg, logger *slog.Logger, adapter Adapter, cc Codec) (*Cache, error) {
	if cfg.Encrypt && len(cfg.EncryptionKey) == 0 && cc.Encryptor == nil {
		return nil, fmt.Errorf("%w: encryption enabled without a key", cacheerrs.ErrValidation)
	}

	pipeline := codec.Pipeline{}
	if cfg.Compress {
		pipeline.Compressor = cc.Compressor
		if pipeline.Compressor == nil {
			pipeline.Compressor = codec.Gzip{}
		}
	}
	if cfg.Encrypt {
		pipeline.Encryptor = cc.Encryptor
		if pipeline.Encryptor == nil {
			enc, err := codec.NewAESGCM(cfg.EncryptionKey)
			if err != nil {
				return nil, fmt.Errorf("%w: build encryptor: %v", cacheerrs.ErrValidation, err)
			}
			pipeline.Encryptor = enc
		}
	}

	c := &Cache{cfg: cfg, adapter: adapter, pipeline: pipeline, logger: logger, counters: newCounters()}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := adapter.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("%w: connect: %v", cacheerrs.ErrRemote, err)
	}
	return c, nil
}

func (c *Cache) entryKey(key string) string  { return c.cfg.Namespace + ":entry:" + key }
func (c *Cache) tagKey(tag string) string    { return c.cfg.Namespace + ":tag:" + tag }
func (c *Cache) sourceKey(src string) string { return c.cfg.Namespace + ":source:" + src }

// bounded applies the configured per-op timeout so a wedged adapter call
// surfaces as a retryable remote error instead of hanging.
func (c *Cache) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.OpTimeout)
}

// missOrErr downgrades adapter failures to misses unless strict errors are
// configured.
func (c *Cache) missOrErr(op, key string, err error) error {
	if c.cfg.StrictErrors {
		return fmt.Errorf("%w: %s %s: %v", cacheerrs.ErrRemote, op, key, err)
	}
	c.logger.Warn("distributed cache degraded to miss", "op", op, "key", key, "error", err)
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()

	raw, ok, err := c.adapter.Get(opCtx, c.entryKey(key))
	if err != nil {
		c.counters.misses.Add(1)
		return nil, false, c.missOrErr("get", key, err)
	}
	if !ok {
		c.counters.misses.Add(1)
		return nil, false, nil
	}

	data, err := c.pipeline.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	var e entry.Entry
	if err = json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("%w: unmarshal entry: %v", cacheerrs.ErrCorrupted, err)
	}
	if e.IsExpired(time.Now()) {
		_, _ = c.deleteEntry(ctx, key, &e)
		c.counters.misses.Add(1)
		c.counters.expirations.Add(1)
		return nil, false, nil
	}
	e.Size = entry.EstimateSize(e.Value)
	e.Touch(time.Now())
	c.counters.hits.Add(1)
	return &e, true, nil
}

func (c *Cache) Set(ctx context.Context, e *entry.Entry) error {
	if e.Expires == nil && c.cfg.DefaultTTL > 0 {
		e = e.Clone()
		exp := time.Now().Add(c.cfg.DefaultTTL)
		e.Expires = &exp
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", e.Key, err)
	}
	raw, err := c.pipeline.Encode(data)
	if err != nil {
		return err
	}

	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	if err = c.adapter.Set(opCtx, c.entryKey(e.Key), raw, e.TTL(time.Now())); err != nil {
		return c.missOrErr("set", e.Key, err)
	}

	for _, tag := range e.Tags {
		if err = c.addToList(ctx, c.tagKey(tag), e.Key); err != nil {
			return err
		}
	}
	if e.Source != "" {
		if err = c.addToList(ctx, c.sourceKey(e.Source), e.Key); err != nil {
			return err
		}
	}
	c.counters.sets.Add(1)
	return nil
}

func (c *Cache) Has(ctx context.Context, key string) (bool, error) {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	ok, err := c.adapter.Has(opCtx, c.entryKey(key))
	if err != nil {
		return false, c.missOrErr("has", key, err)
	}
	return ok, nil
}

func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	return c.deleteEntry(ctx, key, c.peekEntry(ctx, key))
}

// deleteEntry removes the entry key and then drops the key from every tag
// and source list it belongs to, so deleted or expired entries leave no
// dangling index members behind. e may be nil when the entry could not be
// read; there is nothing to unindex then.
func (c *Cache) deleteEntry(ctx context.Context, key string, e *entry.Entry) (bool, error) {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	ok, err := c.adapter.Delete(opCtx, c.entryKey(key))
	if err != nil {
		return false, c.missOrErr("delete", key, err)
	}
	if e != nil {
		for _, tag := range e.Tags {
			if err = c.removeFromList(ctx, c.tagKey(tag), key); err != nil {
				return ok, err
			}
		}
		if e.Source != "" {
			if err = c.removeFromList(ctx, c.sourceKey(e.Source), key); err != nil {
				return ok, err
			}
		}
	}
	return ok, nil
}

// peekEntry is a best-effort decode used to learn an entry's tags and source
// before deletion. Failures yield nil: the delete proceeds either way.
func (c *Cache) peekEntry(ctx context.Context, key string) *entry.Entry {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	raw, ok, err := c.adapter.Get(opCtx, c.entryKey(key))
	if err != nil || !ok {
		return nil
	}
	data, err := c.pipeline.Decode(raw)
	if err != nil {
		return nil
	}
	var e entry.Entry
	if err = json.Unmarshal(data, &e); err != nil {
		return nil
	}
	return &e
}

func (c *Cache) DeleteMany(ctx context.Context, keys []string) (int, error) {
	var n int
	for _, key := range keys {
		ok, err := c.Delete(ctx, key)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// DeleteByTag reads the tag's list key, deletes each listed entry key, then
// drops the list itself.
func (c *Cache) DeleteByTag(ctx context.Context, tag string) (int, error) {
	return c.deleteByList(ctx, c.tagKey(tag))
}

func (c *Cache) DeleteBySource(ctx context.Context, source string) (int, error) {
	return c.deleteByList(ctx, c.sourceKey(source))
}

func (c *Cache) deleteByList(ctx context.Context, listKey string) (int, error) {
	members, err := c.readList(ctx, listKey)
	if err != nil {
		return 0, err
	}
	n, err := c.DeleteMany(ctx, members)
	if err != nil {
		return n, err
	}
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	if _, err = c.adapter.Delete(opCtx, listKey); err != nil {
		return n, c.missOrErr("delete", listKey, err)
	}
	return n, nil
}

func (c *Cache) Clear(ctx context.Context) error {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	if err := c.adapter.Clear(opCtx); err != nil {
		return c.missOrErr("clear", "*", err)
	}
	return nil
}

func (c *Cache) Count(ctx context.Context) (int, error) {
	keys, err := c.Keys(ctx)
	return len(keys), err
}

func (c *Cache) Size(ctx context.Context) (int64, error) {
	// Remote stores do not expose per-key footprints through the adapter;
	// approximate with the entry count.
	n, err := c.Count(ctx)
	return int64(n), err
}

func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	prefix := c.cfg.Namespace + ":entry:"
	raw, err := c.adapter.Keys(opCtx, prefix+"*")
	if err != nil {
		return nil, c.missOrErr("keys", prefix, err)
	}
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, strings.TrimPrefix(k, prefix))
	}
	return keys, nil
}

// Entries decodes every live entry under the namespace.
func (c *Cache) Entries(ctx context.Context) ([]*entry.Entry, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return c.readAll(ctx, keys)
}

func (c *Cache) FindByTag(ctx context.Context, tag string) ([]*entry.Entry, error) {
	members, err := c.readList(ctx, c.tagKey(tag))
	if err != nil {
		return nil, err
	}
	return c.readAll(ctx, members)
}

func (c *Cache) FindBySource(ctx context.Context, source string) ([]*entry.Entry, error) {
	members, err := c.readList(ctx, c.sourceKey(source))
	if err != nil {
		return nil, err
	}
	return c.readAll(ctx, members)
}

// FindByFilter decodes every entry and applies the predicate. Filters are
// opaque, so this one fetches the whole namespace.
func (c *Cache) FindByFilter(ctx context.Context, filter func(*entry.Entry) bool) ([]*entry.Entry, error) {
	all, err := c.Entries(ctx)
	if err != nil {
		return nil, err
	}
	var out []*entry.Entry
	for _, e := range all {
		if filter(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (c *Cache) DeleteByFilter(ctx context.Context, filter func(*entry.Entry) bool) (int, error) {
	matched, err := c.FindByFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	keys := make([]string, 0, len(matched))
	for _, e := range matched {
		keys = append(keys, e.Key)
	}
	return c.DeleteMany(ctx, keys)
}

func (c *Cache) readAll(ctx context.Context, keys []string) ([]*entry.Entry, error) {
	now := time.Now()
	var out []*entry.Entry
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := c.peekEntry(ctx, key)
		if e == nil || e.IsExpired(now) {
			continue
		}
		e.Size = entry.EstimateSize(e.Value)
		out = append(out, e)
	}
	return out, nil
}

// Stats takes a context because the live entry count comes from the adapter.
func (c *Cache) Stats(ctx context.Context) Stats {
	n, _ := c.Count(ctx)
	return c.counters.snapshot(n)
}

func (c *Cache) ResetStats() {
	c.counters.reset()
}

// Cleanup is a no-op sweep: remote TTLs expire server-side and reads drop
// entries whose embedded expiry already passed.
func (c *Cache) Cleanup(_ context.Context) (int, error) {
	return 0, nil
}

func (c *Cache) Close() error {
	return c.adapter.Disconnect()
}

func (c *Cache) readList(ctx context.Context, listKey string) ([]string, error) {
	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	raw, ok, err := c.adapter.Get(opCtx, listKey)
	if err != nil {
		return nil, c.missOrErr("get", listKey, err)
	}
	if !ok {
		return nil, nil
	}
	var members []string
	if err = json.Unmarshal(raw, &members); err != nil {
		return nil, fmt.Errorf("%w: unmarshal index list %s: %v", cacheerrs.ErrCorrupted, listKey, err)
	}
	return members, nil
}

func (c *Cache) addToList(ctx context.Context, listKey, member string) error {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	members, err := c.readList(ctx, listKey)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m == member {
			return nil
		}
	}
	members = append(members, member)
	data, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("marshal index list %s: %w", listKey, err)
	}

	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	if err = c.adapter.Set(opCtx, listKey, data, 0); err != nil {
		return c.missOrErr("set", listKey, err)
	}
	return nil
}

func (c *Cache) removeFromList(ctx context.Context, listKey, member string) error {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	members, err := c.readList(ctx, listKey)
	if err != nil {
		return err
	}
	kept := members[:0]
	for _, m := range members {
		if m != member {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(members) {
		return nil
	}

	opCtx, cancel := c.bounded(ctx)
	defer cancel()
	if len(kept) == 0 {
		if _, err = c.adapter.Delete(opCtx, listKey); err != nil {
			return c.missOrErr("delete", listKey, err)
		}
		return nil
	}
	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("marshal index list %s: %w", listKey, err)
	}
	if err = c.adapter.Set(opCtx, listKey, data, 0); err != nil {
		return c.missOrErr("set", listKey, err)
	}
	return nil
}
