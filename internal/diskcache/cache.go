// Package diskcache implements the durable L2 tier: one content-addressed
// file per key plus a single JSON index mapping key to metadata. Serialized
// entries pass through the compress-then-encrypt codec pipeline.
package diskcache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"

	"github.com/stratacache/go-strata-cache/config"
	"github.com/stratacache/go-strata-cache/internal/cacheerrs"
	"github.com/stratacache/go-strata-cache/internal/codec"
	"github.com/stratacache/go-strata-cache/internal/entry"
)

const entryExt = ".entry"

// Codec carries optional strategy overrides; nil fields fall back to the
// defaults selected by config (gzip, AES-GCM).
type Codec struct {
	Compressor codec.Compressor
	Encryptor  codec.Encryptor
}

type Cache struct {
	mu  sync.Mutex
	cfg *config.PersistentCfg

	index    map[string]*meta
	byTag    map[string]map[string]struct{}
	bySource map[string]map[string]struct{}
	dirty    bool

	pipeline codec.Pipeline
	logger   *slog.Logger
	cancel   context.CancelFunc
	counters *counters
}

func New(ctx context.Context, cfg *config.PersistentCfg, logger *slog.Logger, cc Codec) (*Cache, error) {
	if cfg.Encrypt && len(cfg.EncryptionKey) == 0 && cc.Encryptor == nil {
		return nil, fmt.Errorf("%w: encryption enabled without a key", cacheerrs.ErrValidation)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", cfg.Dir, err)
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

	ctx, cancel := context.WithCancel(ctx)
	c := &Cache{
		cfg:      cfg,
		index:    make(map[string]*meta),
		byTag:    make(map[string]map[string]struct{}),
		bySource: make(map[string]map[string]struct{}),
		pipeline: pipeline,
		logger:   logger,
		cancel:   cancel,
		counters: newCounters(),
	}

	c.mu.Lock()
	err := c.loadIndexLocked()
	c.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go c.janitor(ctx)
	return c, nil
}

// filePath derives a stable, collision-resistant file name from the key.
func (c *Cache) filePath(key string) string {
	sum := xxh3.Hash128([]byte(key)).Bytes()
	return filepath.Join(c.cfg.Dir, hex.EncodeToString(sum[:])+entryExt)
}

// Get loads the entry from disk. A missing backing file while the index
// still references the key self-heals: the stale index entry is dropped and
// the access treated as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*entry.Entry, bool, error) {
	c.mu.Lock()
	m, ok := c.index[key]
	if !ok {
		c.mu.Unlock()
		c.counters.misses.Add(1)
		return nil, false, nil
	}
	if m.isExpired(time.Now()) {
		c.deleteLocked(key, m)
		c.mu.Unlock()
		c.counters.misses.Add(1)
		c.counters.expirations.Add(1)
		return nil, false, nil
	}
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	e, err := c.readEntry(key)
	if err != nil {
		if errors.Is(err, cacheerrs.ErrCorrupted) {
			return nil, false, err
		}
		// fs error: self-heal the index and miss
		c.mu.Lock()
		if stale, still := c.index[key]; still {
			c.deleteLocked(key, stale)
		}
		c.mu.Unlock()
		c.counters.misses.Add(1)
		log.Warn().Err(err).Str("key", key).Msg("persistent cache self-healed stale index entry")
		return nil, false, nil
	}

	c.mu.Lock()
	if m, ok = c.index[key]; ok {
		m.LastAccessed = time.Now()
		m.AccessCount++
		e.LastAccessed = m.LastAccessed
		e.AccessCount = m.AccessCount
		c.dirty = true
	}
	c.mu.Unlock()
	c.counters.hits.Add(1)
	return e, true, nil
}

func (c *Cache) readEntry(key string) (*entry.Entry, error) {
	raw, err := os.ReadFile(c.filePath(key))
	if err != nil {
		return nil, err
	}
	data, err := c.pipeline.Decode(raw)
	if err != nil {
		return nil, err
	}
	var e entry.Entry
	if err = json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: unmarshal entry: %v", cacheerrs.ErrCorrupted, err)
	}
	e.Size = entry.EstimateSize(e.Value)
	return &e, nil
}

// Set serializes the entry through the codec pipeline and writes it next to
// an updated index record. Existing keys keep their version history: the
// stored version is bumped past the indexed one.
func (c *Cache) Set(ctx context.Context, e *entry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.Expires == nil && c.cfg.DefaultTTL > 0 {
		e = e.Clone()
		exp := time.Now().Add(c.cfg.DefaultTTL)
		e.Expires = &exp
	}

	c.mu.Lock()
	if prev, ok := c.index[e.Key]; ok && prev.Version >= e.Version {
		e = e.Clone()
		e.Version = prev.Version + 1
	}
	c.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry %s: %w", e.Key, err)
	}
	raw, err := c.pipeline.Encode(data)
	if err != nil {
		return err
	}
	path := c.filePath(e.Key)
	if err = c.writeEntryFile(path, raw); err != nil {
		return fmt.Errorf("write entry file %s: %w", path, err)
	}

	c.mu.Lock()
	if prev, ok := c.index[e.Key]; ok {
		c.dropIndexRefsLocked(e.Key, prev)
	}
	m := metaOf(e)
	c.index[e.Key] = m
	c.indexRefsLocked(e.Key, m)
	c.dirty = true
	c.mu.Unlock()
	c.counters.sets.Add(1)
	return nil
}

// writeEntryFile lands the payload under a unique temp name and renames it
// into place, so a reader racing a same-key writer always sees a complete
// file, never a truncated one.
func (c *Cache) writeEntryFile(path string, raw []byte) error {
	tmp, err := os.CreateTemp(c.cfg.Dir, "*.tmp")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (c *Cache) Has(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.index[key]
	if !ok {
		return false, nil
	}
	if m.isExpired(time.Now()) {
		c.deleteLocked(key, m)
		c.counters.expirations.Add(1)
		return false, nil
	}
	return true, nil
}

func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	m, ok := c.index[key]
	if ok {
		c.deleteLocked(key, m)
	}
	c.mu.Unlock()
	return ok, nil
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

func (c *Cache) DeleteByTag(ctx context.Context, tag string) (int, error) {
	c.mu.Lock()
	keys := setKeys(c.byTag[tag])
	c.mu.Unlock()
	return c.DeleteMany(ctx, keys)
}

func (c *Cache) DeleteBySource(ctx context.Context, source string) (int, error) {
	c.mu.Lock()
	keys := setKeys(c.bySource[source])
	c.mu.Unlock()
	return c.DeleteMany(ctx, keys)
}

func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	for key, m := range c.index {
		c.deleteLocked(key, m)
	}
	err := c.flushIndexLocked()
	c.mu.Unlock()
	return err
}

func (c *Cache) Count(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index), nil
}

func (c *Cache) Size(_ context.Context) (int64, error) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.index))
	for key := range c.index {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	var total int64
	for _, key := range keys {
		if fi, err := os.Stat(c.filePath(key)); err == nil {
			total += fi.Size()
		}
	}
	return total, nil
}

func (c *Cache) Keys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.index))
	for key := range c.index {
		keys = append(keys, key)
	}
	return keys, nil
}

// Entries loads every live entry from disk.
func (c *Cache) Entries(ctx context.Context) ([]*entry.Entry, error) {
	keys, err := c.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return c.readAll(ctx, keys)
}

func (c *Cache) FindByTag(ctx context.Context, tag string) ([]*entry.Entry, error) {
	c.mu.Lock()
	keys := setKeys(c.byTag[tag])
	c.mu.Unlock()
	return c.readAll(ctx, keys)
}

func (c *Cache) FindBySource(ctx context.Context, source string) ([]*entry.Entry, error) {
	c.mu.Lock()
	keys := setKeys(c.bySource[source])
	c.mu.Unlock()
	return c.readAll(ctx, keys)
}

// FindByFilter loads every entry and applies the predicate. Filters are
// opaque, so this one reads all backing files.
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

// readAll loads each key's file, skipping entries that expired or vanished
// between the index snapshot and the read. Corruption still surfaces.
func (c *Cache) readAll(ctx context.Context, keys []string) ([]*entry.Entry, error) {
	now := time.Now()
	var out []*entry.Entry
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := c.readEntry(key)
		if err != nil {
			if errors.Is(err, cacheerrs.ErrCorrupted) {
				return nil, err
			}
			continue
		}
		if e.IsExpired(now) {
			continue
		}
		c.mu.Lock()
		if m, ok := c.index[key]; ok {
			e.LastAccessed = m.LastAccessed
			e.AccessCount = m.AccessCount
		}
		c.mu.Unlock()
		out = append(out, e)
	}
	return out, nil
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.index)
	keys := make([]string, 0, entries)
	for key := range c.index {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	var size int64
	for _, key := range keys {
		if fi, err := os.Stat(c.filePath(key)); err == nil {
			size += fi.Size()
		}
	}
	return c.counters.snapshot(entries, size)
}

func (c *Cache) ResetStats() {
	c.counters.reset()
}

// Cleanup removes expired entries by scanning the index, not the files.
func (c *Cache) Cleanup(_ context.Context) (int, error) {
	now := time.Now()
	c.mu.Lock()
	var expired []string
	for key, m := range c.index {
		if m.isExpired(now) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.deleteLocked(key, c.index[key])
	}
	c.mu.Unlock()
	c.counters.expirations.Add(int64(len(expired)))
	return len(expired), nil
}

// Flush forces the in-memory index to disk.
func (c *Cache) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushIndexLocked()
}

// Close flushes the index and stops the background flusher. Idempotent.
func (c *Cache) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushIndexLocked()
}

// deleteLocked drops the index record, its inverted-index references and the
// backing file. File removal failures are logged, not raised: the index no
// longer references the file, so a leftover is garbage, not corruption.
func (c *Cache) deleteLocked(key string, m *meta) {
	delete(c.index, key)
	c.dropIndexRefsLocked(key, m)
	c.dirty = true
	if err := os.Remove(c.filePath(key)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("key", key).Msg("persistent cache failed to remove entry file")
	}
}

// janitor periodically flushes a dirty index and sweeps expired entries.
func (c *Cache) janitor(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, _ := c.Cleanup(ctx); n > 0 {
				c.logger.Debug("persistent cleanup removed expired entries", "removed", n)
			}
			c.mu.Lock()
			if c.dirty {
				if err := c.flushIndexLocked(); err != nil {
					log.Error().Err(err).Msg("persistent cache index flush failed")
				}
			}
			c.mu.Unlock()
		}
	}
}

func setKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys
}
