package dump

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/cache/db/model"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	mu       sync.Mutex
	entries  []*model.Entry
	restored []*model.Entry
	now      time.Time
}

func (s *memSource) Walk(ctx context.Context, fn func(*model.Entry) bool) {
	for _, e := range s.entries {
		if ctx.Err() != nil || !fn(e) {
			return
		}
	}
}

func (s *memSource) Restore(e *model.Entry) bool {
	if e.IsExpired(s.now) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored = append(s.restored, e)
	return true
}

func persistence(t *testing.T, gzip bool) *config.PersistenceCfg {
	return &config.PersistenceCfg{Dir: t.TempDir(), Name: "cache", Gzip: gzip, Crc32Control: true, MaxVersions: 2}
}

// TestDump_RoundTrip restores every dumped entry with its metadata.
func TestDump_RoundTrip(t *testing.T) {
	for _, gz := range []bool{false, true} {
		cfg := persistence(t, gz)
		now := time.Now()
		src := &memSource{now: now, entries: []*model.Entry{
			model.NewEntry("a", []byte(`{"v":1}`), false, now, time.Minute),
			model.NewEntry("b", []byte{0x28, 0xb5, 0x2f, 0xfd}, true, now, 0),
		}}

		require.NoError(t, New(cfg, src).Dump(context.Background()))

		dst := &memSource{now: now}
		require.NoError(t, New(cfg, dst).Load(context.Background()))
		require.Len(t, dst.restored, 2)

		got := dst.restored[1]
		require.Equal(t, "b", got.Raw())
		require.True(t, got.IsCompressed())
		require.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, got.PayloadBytes())
		require.Equal(t, now.UnixNano(), got.CreatedAt())
		require.Zero(t, got.TTL())
		require.Equal(t, time.Minute, dst.restored[0].TTL())
	}
}

// TestDump_SkipsExpired does not restore entries that expired since the dump.
func TestDump_SkipsExpired(t *testing.T) {
	cfg := persistence(t, true)
	now := time.Now()
	src := &memSource{entries: []*model.Entry{
		model.NewEntry("short", []byte("1"), false, now, time.Second),
		model.NewEntry("long", []byte("2"), false, now, time.Hour),
	}}
	require.NoError(t, New(cfg, src).Dump(context.Background()))

	dst := &memSource{now: now.Add(time.Minute)}
	require.NoError(t, New(cfg, dst).Load(context.Background()))
	require.Len(t, dst.restored, 1)
	require.Equal(t, "long", dst.restored[0].Raw())
}

// TestDump_Rotation keeps only the newest versions.
func TestDump_Rotation(t *testing.T) {
	cfg := persistence(t, false)
	src := &memSource{entries: []*model.Entry{model.NewEntry("k", []byte("v"), false, time.Now(), 0)}}
	d := New(cfg, src)

	for i := 0; i < 4; i++ {
		require.NoError(t, d.Dump(context.Background()))
	}

	require.Equal(t, []int{3, 4}, listVersions(cfg.Dir))
	require.NoError(t, d.LoadVersion(context.Background(), "v3"))
	require.Error(t, d.LoadVersion(context.Background(), "v1"))
}

// TestDump_CorruptedRecord reports checksum mismatches and keeps reading.
func TestDump_CorruptedRecord(t *testing.T) {
	cfg := persistence(t, false)
	src := &memSource{entries: []*model.Entry{
		model.NewEntry("a", []byte("aaaa"), false, time.Now(), 0),
		model.NewEntry("b", []byte("bbbb"), false, time.Now(), 0),
	}}
	require.NoError(t, New(cfg, src).Dump(context.Background()))

	files, err := filepath.Glob(filepath.Join(cfg.Dir, "v1", "cache-*.dump"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff // flip the last payload byte of "b"
	require.NoError(t, os.WriteFile(files[0], data, 0o644))

	dst := &memSource{now: time.Now()}
	require.ErrorContains(t, New(cfg, dst).Load(context.Background()), "1 errors")
	require.Len(t, dst.restored, 1)
	require.Equal(t, "a", dst.restored[0].Raw())
}

// TestDump_Disabled refuses to run without a persistence config.
func TestDump_Disabled(t *testing.T) {
	d := New(nil, &memSource{})
	require.ErrorIs(t, d.Dump(context.Background()), ErrDumpNotEnabled)
	require.ErrorIs(t, d.Load(context.Background()), ErrDumpNotEnabled)
}

// TestDump_NoDump reports an empty directory.
func TestDump_NoDump(t *testing.T) {
	require.ErrorIs(t, New(persistence(t, false), &memSource{}).Load(context.Background()), ErrNoDump)
}
