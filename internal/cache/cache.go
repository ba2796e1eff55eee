package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/cache/db"
	"github.com/Borislavv/go-ash-perf/internal/cache/db/model"
	"github.com/Borislavv/go-ash-perf/internal/compressor"
	models "github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
)

const spinsBackoff = 1 << 20

var ErrEntryTooLarge = errors.New("entry exceeds max cache size")

type Cacher interface {
	Put(key string, value any, ttl time.Duration) error
	Get(key string) (data []byte, ok bool)
	Del(key string) (ok bool)
	Clear()
	Len() int64
	Mem() int64
	Stats() models.CacheStats
	CacheMetrics() (hits, misses, evictedItems, evictedBytes, expiredItems, storeFailures int64)
}

// SettingsSource returns the current policy output. The cache reads it on
// every write, so limit and level changes apply to the next put.
type SettingsSource func() models.PerformanceSettings

// Cache is a TTL and size bounded store. Every mutation is serialized by wmu,
// including the compression and mirror-write steps, so the size bound holds
// under concurrent puts.
type Cache struct {
	cfg      *config.Optimizer
	settings SettingsSource
	db       *db.Store
	store    models.PersistentStore
	codec    *codec
	clock    clock.Clock
	logger   *slog.Logger
	counters *counters
	wmu      sync.Mutex
}

func New(
	cfg *config.Optimizer,
	settings SettingsSource,
	store models.PersistentStore,
	clk clock.Clock,
	logger *slog.Logger,
) (*Cache, error) {
	cd, err := newCodec()
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Cache{
		cfg:      cfg,
		settings: settings,
		db:       db.NewStore(),
		store:    store,
		codec:    cd,
		clock:    clk,
		logger:   logger,
		counters: newCounters(),
	}, nil
}

// Put serializes and best-effort compresses value, evicts the oldest entries
// until it fits, stores it and mirrors it to the persistent store.
// A zero ttl falls back to the configured default. ErrEntryTooLarge is the only error.
func (c *Cache) Put(key string, value any, ttl time.Duration) error {
	serialized := c.serialize(key, value)
	if ttl <= 0 {
		ttl = c.cfg.Cache.DefaultTTL
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	payload, compressed := c.compress([]byte(serialized))
	entry := model.NewEntry(key, payload, compressed, c.clock.Now(), ttl)
	if err := c.insert(entry); err != nil {
		return err
	}
	c.persist(entry)
	return nil
}

// Get returns the decompressed serialized value. Expired entries are removed
// (memory and mirror) and read as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	data, ok := c.lookup(key)
	c.countRead(ok)
	return data, ok
}

// GetOrLoad is Get falling back to the mirror store on a memory miss.
// The read is counted once, whichever side served it.
func (c *Cache) GetOrLoad(key string) ([]byte, bool) {
	data, ok := c.lookup(key)
	if !ok && c.Load(key) {
		data, ok = c.lookup(key)
	}
	c.countRead(ok)
	return data, ok
}

func (c *Cache) Del(key string) bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, hit := c.db.Remove(model.NewKey(key))
	if hit {
		c.unpersist(key)
	}
	return hit
}

// Clear drops every entry with its mirror record and zeroes the hit/miss counters.
func (c *Cache) Clear() {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if c.store != nil {
		var keys []string
		c.db.Walk(context.Background(), func(e *model.Entry) bool {
			keys = append(keys, e.Raw())
			return true
		})
		for _, key := range keys {
			c.unpersist(key)
		}
	}
	c.db.Clear()
	c.counters.resetReads()
}

func (c *Cache) Len() int64 { return c.db.Len() }
func (c *Cache) Mem() int64 { return c.db.Mem() }

func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Hits:   c.counters.hits.Load(),
		Misses: c.counters.misses.Load(),
		Size:   c.db.Len(),
		Bytes:  c.db.Mem(),
	}
}

// HitRate is hits / (hits + misses), 0 before the first read.
func (c *Cache) HitRate() float64 { return c.Stats().HitRate() }

func (c *Cache) CacheMetrics() (hits, misses, evictedItems, evictedBytes, expiredItems, storeFailures int64) {
	return c.counters.snapshot()
}

// Restore inserts an already built entry (dump or mirror reload) without
// mirroring it again. Expired or oversized entries are skipped.
func (c *Cache) Restore(entry *model.Entry) bool {
	if entry.IsExpired(c.clock.Now()) {
		return false
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	return c.insert(entry) == nil
}

// Walk iterates live entries oldest first.
func (c *Cache) Walk(ctx context.Context, fn func(entry *model.Entry) bool) {
	c.db.Walk(ctx, fn)
}

// SweepExpired removes up to limit expired entries and returns how many were dropped.
func (c *Cache) SweepExpired(limit int) (removed int64) {
	for _, entry := range c.db.CollectExpired(c.clock.Now(), limit) {
		if c.removeExpired(entry) {
			removed++
		}
	}
	return removed
}

func (c *Cache) HasExpired() bool {
	return len(c.db.CollectExpired(c.clock.Now(), 1)) > 0
}

// SoftMemoryLimitOvercome reports usage above the soft limit of the current max size.
func (c *Cache) SoftMemoryLimitOvercome() bool {
	return c.cfg.Eviction.Enabled() && c.db.Len() > 0 && c.db.Mem() > c.softLimit()
}

func (c *Cache) SoftEvictUntilWithinLimit(backoff int64) (freed, evicted int64) {
	if !c.cfg.Eviction.Enabled() {
		return 0, 0
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	freed, evicted = c.db.EvictUntilWithinLimit(c.softLimit(), 0, backoff, c.onEvict)
	return
}

// Close releases codec resources. The cache must not be used afterwards.
func (c *Cache) Close() error {
	c.codec.close()
	return nil
}

/**
 * Private API.
 */

// insert must be called under wmu.
func (c *Cache) insert(entry *model.Entry) error {
	limit := c.settings().MaxCacheSize
	if entry.Weight() > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrEntryTooLarge, entry.Weight(), limit)
	}

	// the replaced entry must not count against the new one
	if _, hit := c.db.Remove(entry.Key()); hit {
		c.logger.Debug("replacing cache entry", "key", entry.Raw())
	}

	if c.db.Mem()+entry.Weight() > limit {
		c.db.EvictUntilWithinLimit(limit, entry.Weight(), spinsBackoff, c.onEvict)
	}

	c.db.Set(entry)
	return nil
}

// serialize returns the stored JSON text of value. Strings are quoted, byte
// slices and json.RawMessage are taken as already encoded. Values JSON cannot
// encode (channels, funcs, cycles) are stored as their quoted type name.
func (c *Cache) serialize(key string, value any) string {
	if s, ok := value.(string); ok {
		data, _ := json.Marshal(s)
		return string(data)
	}
	serialized, err := compressor.Serialize(value)
	if err == nil {
		return serialized
	}
	c.logger.Warn("cache value is not serializable, storing its type name", "key", key, "err", err)
	data, _ := json.Marshal(fmt.Sprintf("%T", value))
	return string(data)
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	entry, ok := c.db.Get(model.NewKey(key))
	if !ok {
		return nil, false
	}

	if entry.IsExpired(c.clock.Now()) {
		c.removeExpired(entry)
		return nil, false
	}

	data, err := c.codec.decode(entry.PayloadBytes(), entry.IsCompressed())
	if err != nil {
		c.logger.Error("dropping undecodable cache entry", "key", key, "err", err)
		c.Del(key)
		return nil, false
	}
	return data, true
}

func (c *Cache) countRead(hit bool) {
	if hit {
		c.counters.hits.Add(1)
	} else {
		c.counters.misses.Add(1)
	}
}

func (c *Cache) compress(data []byte) (payload []byte, compressed bool) {
	s := c.settings()
	if c.cfg.Cache.DisablePayloadCompression || !s.EnableDataCompression {
		return data, false
	}
	payload, compressed, err := c.codec.encode(data, s.CompressionLevel)
	if err != nil {
		c.logger.Warn("payload compression failed, storing raw", "err", err)
		return data, false
	}
	return payload, compressed
}

func (c *Cache) removeExpired(entry *model.Entry) bool {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, hit := c.db.RemoveEntry(entry); !hit {
		return false
	}
	c.counters.expiredItems.Add(1)
	c.unpersist(entry.Raw())
	return true
}

// onEvict runs under wmu.
func (c *Cache) onEvict(victim *model.Entry) {
	c.counters.evictedItems.Add(1)
	c.counters.evictedBytes.Add(victim.Weight())
	c.unpersist(victim.Raw())
}

func (c *Cache) softLimit() int64 {
	return int64(float64(c.settings().MaxCacheSize) * c.cfg.Eviction.SoftLimitCoefficient)
}
