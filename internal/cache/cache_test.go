package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	dbmodel "github.com/Borislavv/go-ash-perf/internal/cache/db/model"
	"github.com/Borislavv/go-ash-perf/internal/store"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func settings(maxSize int64, compression bool) SettingsSource {
	s := model.PerformanceSettings{
		EnableDataCompression: compression,
		CompressionLevel:      model.CompressionMaximum,
		ImageQuality:          0.8,
		MaxCacheSize:          maxSize,
	}
	return func() model.PerformanceSettings { return s }
}

func newTestCache(t *testing.T, src SettingsSource, st model.PersistentStore) (*Cache, *clock.Mock) {
	t.Helper()
	return newConfiguredCache(t, config.Default(), src, st)
}

func newConfiguredCache(t *testing.T, cfg *config.Optimizer, src SettingsSource, st model.PersistentStore) (*Cache, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	c, err := New(cfg, src, st, clk, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, clk
}

type failingStore struct{ calls int }

func (f *failingStore) Get(string) (string, error) {
	f.calls++
	return "", errors.New("quota exceeded")
}
func (f *failingStore) Set(string, string) error { f.calls++; return errors.New("quota exceeded") }
func (f *failingStore) Remove(string) error      { f.calls++; return errors.New("quota exceeded") }

// TestCache_PutGet returns the serialized value right after a put.
func TestCache_PutGet(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, true), nil)

	require.NoError(t, c.Put("k", map[string]int{"v": 1}, time.Minute))

	data, ok := c.Get("k")
	require.True(t, ok)
	require.JSONEq(t, `{"v":1}`, string(data))
}

// TestCache_PutGet_Compressed round-trips large payloads through zstd.
func TestCache_PutGet_Compressed(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, true), nil)
	value := map[string]string{"text": fmt.Sprintf("%0512d", 7), "spaced": "a    b"}

	require.NoError(t, c.Put("k", value, time.Minute))
	require.Less(t, c.Mem(), int64(512), "repetitive payload should be stored compressed")

	data, ok := c.Get("k")
	require.True(t, ok)
	require.JSONEq(t, fmt.Sprintf(`{"text":"%0512d","spaced":"a    b"}`, 7), string(data))
}

// TestCache_Miss counts misses for absent keys.
func TestCache_Miss(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, false), nil)

	_, ok := c.Get("absent")
	require.False(t, ok)
	require.Equal(t, model.CacheStats{Misses: 1}, c.Stats())
	require.Equal(t, 0.0, c.HitRate())
}

// TestCache_Expired drops entries older than their ttl.
func TestCache_Expired(t *testing.T) {
	st := store.NewMemory()
	c, clk := newTestCache(t, settings(model.MiB, false), st)

	require.NoError(t, c.Put("k", "v", time.Millisecond))
	require.Equal(t, 1, st.Len())

	clk.Add(10 * time.Millisecond)

	_, ok := c.Get("k")
	require.False(t, ok)
	require.Equal(t, int64(0), c.Len())
	require.Equal(t, 0, st.Len(), "expired entries leave the mirror store too")

	hits, misses, _, _, expired, _ := c.CacheMetrics()
	require.Equal(t, int64(0), hits)
	require.Equal(t, int64(1), misses)
	require.Equal(t, int64(1), expired)
}

// TestCache_DefaultTTL applies the configured ttl when none is given.
func TestCache_DefaultTTL(t *testing.T) {
	c, clk := newTestCache(t, settings(model.MiB, false), nil)

	require.NoError(t, c.Put("k", "v", 0))
	clk.Add(config.Default().Cache.DefaultTTL)
	_, ok := c.Get("k")
	require.True(t, ok)

	clk.Add(time.Millisecond)
	_, ok = c.Get("k")
	require.False(t, ok)
}

// TestCache_HitRate keeps hits / (hits + misses).
func TestCache_HitRate(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, false), nil)
	require.NoError(t, c.Put("k", "v", time.Minute))

	for i := 0; i < 3; i++ {
		_, _ = c.Get("k")
	}
	_, _ = c.Get("other")

	stats := c.Stats()
	require.Equal(t, int64(3), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, 0.75, c.HitRate())
}

// TestCache_EvictsOldestByCreation evicts by creation time even if the old entry is read often.
func TestCache_EvictsOldestByCreation(t *testing.T) {
	c, clk := newTestCache(t, settings(30, false), nil)

	require.NoError(t, c.Put("a", "0123456789", time.Hour)) // 12 bytes serialized
	clk.Add(time.Millisecond)
	require.NoError(t, c.Put("b", "0123456789", time.Hour))
	for i := 0; i < 10; i++ {
		_, ok := c.Get("a")
		require.True(t, ok)
	}
	clk.Add(time.Millisecond)
	require.NoError(t, c.Put("c", "0123456789", time.Hour))

	_, ok := c.Get("a")
	require.False(t, ok, "oldest entry is evicted despite reads")
	_, ok = c.Get("b")
	require.True(t, ok)
	require.LessOrEqual(t, c.Mem(), int64(30))

	_, _, evictedItems, evictedBytes, _, _ := c.CacheMetrics()
	require.Equal(t, int64(1), evictedItems)
	require.Equal(t, int64(12), evictedBytes)
}

// TestCache_RePutReplaces does not double count a replaced key.
func TestCache_RePutReplaces(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, false), nil)

	require.NoError(t, c.Put("k", "first", time.Minute))
	require.NoError(t, c.Put("k", "second!", time.Minute))

	require.Equal(t, int64(1), c.Len())
	require.Equal(t, int64(len(`"second!"`)), c.Mem())
	data, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, `"second!"`, string(data))
}

// TestCache_EntryTooLarge rejects entries that can never fit and keeps the others.
func TestCache_EntryTooLarge(t *testing.T) {
	c, _ := newTestCache(t, settings(16, false), nil)
	require.NoError(t, c.Put("small", "x", time.Minute))

	err := c.Put("huge", "0123456789012345678901234567890", time.Minute)
	require.ErrorIs(t, err, ErrEntryTooLarge)
	require.Equal(t, int64(1), c.Len())
}

// TestCache_ConcurrentPutsRespectLimit keeps the size bound under parallel writers.
func TestCache_ConcurrentPutsRespectLimit(t *testing.T) {
	const limit = 4 * 1024
	c, _ := newTestCache(t, settings(limit, false), nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Go(func() {
			for i := 0; i < 200; i++ {
				if err := c.Put(fmt.Sprintf("g%d-%d", g, i), fmt.Sprintf("%064d", i), time.Minute); err != nil {
					t.Error(err)
					return
				}
				if mem := c.Mem(); mem > limit {
					t.Errorf("mem %d above limit", mem)
				}
			}
		})
	}
	wg.Wait()

	require.LessOrEqual(t, c.Mem(), int64(limit))
	require.Greater(t, c.Len(), int64(0))
}

// TestCache_Unserializable stores a placeholder instead of failing the put.
func TestCache_Unserializable(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, true), nil)

	require.NoError(t, c.Put("k", make(chan int), time.Minute))
	data, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, `"chan int"`, string(data))
}

// TestCache_StringWeight accounts strings by their quoted JSON length and raw bytes as given.
func TestCache_StringWeight(t *testing.T) {
	c, _ := newTestCache(t, settings(model.MiB, false), nil)

	require.NoError(t, c.Put("s", "abc", time.Minute))
	require.Equal(t, int64(5), c.Mem())

	require.NoError(t, c.Put("b", []byte(`{"a":1}`), time.Minute))
	require.Equal(t, int64(12), c.Mem())

	data, ok := c.Get("s")
	require.True(t, ok)
	require.Equal(t, `"abc"`, string(data))
}

// TestCache_StoreFailuresAreSwallowed keeps memory operations working when the mirror fails.
func TestCache_StoreFailuresAreSwallowed(t *testing.T) {
	st := &failingStore{}
	c, clk := newTestCache(t, settings(model.MiB, true), st)

	require.NoError(t, c.Put("k", "v", time.Second))
	_, ok := c.Get("k")
	require.True(t, ok)

	clk.Add(2 * time.Second)
	_, ok = c.Get("k")
	require.False(t, ok)

	require.Greater(t, st.calls, 0)
	_, _, _, _, _, failures := c.CacheMetrics()
	require.Equal(t, int64(2), failures)
}

// TestCache_Clear drops entries, mirror records and read counters.
func TestCache_Clear(t *testing.T) {
	st := store.NewMemory()
	c, _ := newTestCache(t, settings(model.MiB, false), st)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("k%d", i), i, time.Minute))
	}
	_, _ = c.Get("k1")
	_, _ = c.Get("nope")

	c.Clear()

	require.Equal(t, int64(0), c.Len())
	require.Equal(t, int64(0), c.Mem())
	require.Equal(t, 0, st.Len())
	require.Equal(t, model.CacheStats{}, c.Stats())
}

// TestCache_Del removes an entry and its mirror.
func TestCache_Del(t *testing.T) {
	st := store.NewMemory()
	c, _ := newTestCache(t, settings(model.MiB, false), st)
	require.NoError(t, c.Put("k", "v", time.Minute))

	require.True(t, c.Del("k"))
	require.False(t, c.Del("k"))
	require.Equal(t, 0, st.Len())
}

// TestCache_Load restores a mirrored entry into memory.
func TestCache_Load(t *testing.T) {
	st := store.NewMemory()
	first, clk := newTestCache(t, settings(model.MiB, true), st)
	require.NoError(t, first.Put("k", map[string]string{"a": "b"}, time.Hour))

	second, err := New(config.Default(), settings(model.MiB, true), st, clk, slog.Default())
	require.NoError(t, err)
	defer second.Close()

	require.True(t, second.Load("k"))
	data, ok := second.Get("k")
	require.True(t, ok)
	require.JSONEq(t, `{"a":"b"}`, string(data))

	require.False(t, second.Load("absent"))
}

// TestCache_SweepExpired removes expired entries proactively.
func TestCache_SweepExpired(t *testing.T) {
	c, clk := newTestCache(t, settings(model.MiB, false), nil)
	require.NoError(t, c.Put("short", "v", time.Second))
	require.NoError(t, c.Put("long", "v", time.Hour))

	require.False(t, c.HasExpired())
	clk.Add(2 * time.Second)
	require.True(t, c.HasExpired())

	require.Equal(t, int64(1), c.SweepExpired(10))
	require.Equal(t, int64(1), c.Len())
	require.Equal(t, model.CacheStats{Size: 1, Bytes: c.Mem()}, c.Stats(), "sweeps do not count as reads")
}

// TestCache_SoftEvict trims the oldest entries down to the soft limit.
func TestCache_SoftEvict(t *testing.T) {
	cfg := config.Default()
	cfg.Eviction = &config.EvictionCfg{SoftLimitCoefficient: 0.9}
	c, _ := newConfiguredCache(t, cfg, settings(1000, false), nil)
	for i := 0; i < 95; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("k%02d", i), "12345678", time.Minute)) // 10 bytes serialized
	}
	require.Equal(t, int64(950), c.Mem())
	require.True(t, c.SoftMemoryLimitOvercome())

	freed, evicted := c.SoftEvictUntilWithinLimit(1024)
	require.Equal(t, int64(50), freed)
	require.Equal(t, int64(5), evicted)
	require.False(t, c.SoftMemoryLimitOvercome())

	_, ok := c.Get("k00")
	require.False(t, ok)
	_, ok = c.Get("k05")
	require.True(t, ok)
}

// TestCache_NoSoftLimitByDefault keeps every live entry while usage stays within the max size.
func TestCache_NoSoftLimitByDefault(t *testing.T) {
	c, _ := newTestCache(t, settings(1000, false), nil)
	for i := 0; i < 95; i++ {
		require.NoError(t, c.Put(fmt.Sprintf("k%02d", i), "12345678", time.Minute))
	}

	require.False(t, c.SoftMemoryLimitOvercome())
	freed, evicted := c.SoftEvictUntilWithinLimit(1024)
	require.Zero(t, freed+evicted)
	require.Equal(t, int64(95), c.Len())
}

// TestCache_RestoredEntryEvictedByAge evicts a restored old entry before younger resident ones.
func TestCache_RestoredEntryEvictedByAge(t *testing.T) {
	c, clk := newTestCache(t, settings(30, false), nil)
	clk.Add(time.Hour)

	require.NoError(t, c.Put("young", "0123456789", 2*time.Hour)) // 12 bytes serialized
	old := dbmodel.NewEntry("old", []byte(`"0123456789"`), false, clk.Now().Add(-30*time.Minute), 2*time.Hour)
	require.True(t, c.Restore(old))

	clk.Add(time.Millisecond)
	require.NoError(t, c.Put("new", "0123456789", 2*time.Hour))

	_, ok := c.Get("old")
	require.False(t, ok, "the oldest createdAt goes first")
	_, ok = c.Get("young")
	require.True(t, ok)
	_, ok = c.Get("new")
	require.True(t, ok)
}

// TestCache_GetOrLoad_CountsOnce counts a mirror fallback as a single read.
func TestCache_GetOrLoad_CountsOnce(t *testing.T) {
	st := store.NewMemory()
	first, clk := newTestCache(t, settings(model.MiB, true), st)
	require.NoError(t, first.Put("k", map[string]int{"v": 1}, time.Hour))

	second, err := New(config.Default(), settings(model.MiB, true), st, clk, slog.Default())
	require.NoError(t, err)
	defer second.Close()

	data, ok := second.GetOrLoad("k")
	require.True(t, ok)
	require.JSONEq(t, `{"v":1}`, string(data))
	require.Equal(t, model.CacheStats{Hits: 1, Size: 1, Bytes: second.Mem()}, second.Stats())

	_, ok = second.GetOrLoad("absent")
	require.False(t, ok)
	require.Equal(t, int64(1), second.Stats().Misses)
}
