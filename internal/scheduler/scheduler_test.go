package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	mu      sync.Mutex
	order   []string
	fail    map[string]bool
	gate    chan struct{} // when set, the first render waits on it
	started chan struct{}
	once    sync.Once
}

func (r *fakeRenderer) Render(_ context.Context, _ model.ChartConfig, container string) (model.RenderResult, error) {
	r.once.Do(func() {
		if r.gate != nil {
			close(r.started)
			<-r.gate
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, container)
	if r.fail[container] {
		return model.RenderResult{}, errors.New("canvas lost")
	}
	return model.RenderResult{Success: true}, nil
}

func (r *fakeRenderer) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func gated() *fakeRenderer {
	return &fakeRenderer{gate: make(chan struct{}), started: make(chan struct{})}
}

func env(device model.DeviceProfile, network model.NetworkState, progressive bool) Environment {
	settings := model.PerformanceSettings{EnableProgressiveLoading: progressive, ImageQuality: 0.8}
	return func() (model.DeviceProfile, model.NetworkState, model.PerformanceSettings) {
		return device, network, settings
	}
}

func noDelay(size int) config.SchedulerCfg {
	var zero time.Duration
	return config.SchedulerCfg{BatchSize: size, BatchDelay: &zero}
}

func newScheduler(t *testing.T, cfg config.SchedulerCfg, clk clock.Clock, r model.ChartRenderer, e Environment, obs LoadObserver) *Scheduler {
	t.Helper()
	s := New(context.Background(), cfg, slog.Default(), clk, r, e, obs)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(3 * time.Second):
		t.Fatal("result was not delivered")
		return Result{}
	}
}

// TestScheduler_ResolvesAll renders every request of several batches as optimized.
func TestScheduler_ResolvesAll(t *testing.T) {
	r := &fakeRenderer{}
	var observed atomic.Int32
	s := newScheduler(t, noDelay(2), nil, r, env(model.DeviceProfile{}, model.NetworkState{}, true),
		func(time.Duration, error) { observed.Add(1) })

	var results []<-chan Result
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		results = append(results, s.Submit(context.Background(), Request{Container: c}))
	}
	for _, ch := range results {
		res := await(t, ch)
		require.NoError(t, res.Err)
		require.True(t, res.Success)
		require.True(t, res.Optimized)
		require.NotEmpty(t, res.ID)
	}

	require.Eventually(t, func() bool { return !s.Loading() }, time.Second, 5*time.Millisecond)
	require.Zero(t, s.QueueLen())
	require.Equal(t, int32(5), observed.Load())

	submitted, rendered, failed, batches := s.SchedulerMetrics()
	require.Equal(t, int64(5), submitted)
	require.Equal(t, int64(5), rendered)
	require.Zero(t, failed)
	require.GreaterOrEqual(t, batches, int64(3))
}

// TestScheduler_PriorityOrder dispatches higher priorities first and keeps submission order on ties.
func TestScheduler_PriorityOrder(t *testing.T) {
	r := gated()
	s := newScheduler(t, noDelay(1), nil, r, env(model.DeviceProfile{}, model.NetworkState{}, true), nil)

	first := s.Submit(context.Background(), Request{Container: "first"})
	<-r.started

	var results []<-chan Result
	for _, req := range []Request{
		{Container: "low", Priority: 1},
		{Container: "high-1", Priority: 5},
		{Container: "mid", Priority: 3},
		{Container: "high-2", Priority: 5},
	} {
		results = append(results, s.Submit(context.Background(), req))
	}
	require.Equal(t, 4, s.QueueLen())
	require.True(t, s.Loading())

	close(r.gate)
	await(t, first)
	for _, ch := range results {
		await(t, ch)
	}

	require.Equal(t, []string{"first", "high-1", "high-2", "mid", "low"}, r.rendered())
}

// TestScheduler_FailureIsolated fails only the broken request of a batch.
func TestScheduler_FailureIsolated(t *testing.T) {
	r := &fakeRenderer{fail: map[string]bool{"bad": true}}
	s := newScheduler(t, noDelay(5), nil, r, env(model.DeviceProfile{}, model.NetworkState{}, true), nil)

	good := s.Submit(context.Background(), Request{Container: "good"})
	bad := s.Submit(context.Background(), Request{Container: "bad"})

	res := await(t, bad)
	require.Error(t, res.Err)
	require.False(t, res.Success)
	require.Equal(t, "bad", res.Container)

	res = await(t, good)
	require.NoError(t, res.Err)
	require.True(t, res.Success)
}

type panickingRenderer struct{}

func (panickingRenderer) Render(context.Context, model.ChartConfig, string) (model.RenderResult, error) {
	panic("renderer bug")
}

// TestScheduler_RendererPanic turns a renderer panic into an item error.
func TestScheduler_RendererPanic(t *testing.T) {
	s := newScheduler(t, noDelay(2), nil, panickingRenderer{}, env(model.DeviceProfile{}, model.NetworkState{}, true), nil)

	res := await(t, s.Submit(context.Background(), Request{Container: "x"}))
	require.ErrorContains(t, res.Err, "panicked")
}

// TestScheduler_Disabled renders immediately without optimization.
func TestScheduler_Disabled(t *testing.T) {
	r := &fakeRenderer{}
	s := newScheduler(t, config.SchedulerCfg{}, nil, r, env(model.DeviceProfile{IsMobile: true}, model.NetworkState{}, false), nil)

	cfg := model.ChartConfig{Series: []model.Series{{Data: series(100)}}}
	res := await(t, s.Submit(context.Background(), Request{Config: cfg, Container: "c"}))

	require.NoError(t, res.Err)
	require.True(t, res.Success)
	require.False(t, res.Optimized)
	require.Len(t, res.Config.Series[0].Data, 100)
	require.False(t, s.Loading())
}

// TestScheduler_RendererMissing rejects requests without a renderer.
func TestScheduler_RendererMissing(t *testing.T) {
	s := newScheduler(t, config.SchedulerCfg{}, nil, nil, env(model.DeviceProfile{}, model.NetworkState{}, true), nil)

	res := await(t, s.Submit(context.Background(), Request{}))
	require.ErrorIs(t, res.Err, ErrRendererMissing)
}

// TestScheduler_BatchDelay waits between batches on the injected clock.
func TestScheduler_BatchDelay(t *testing.T) {
	clk := clock.NewMock()
	r := &fakeRenderer{}
	s := newScheduler(t, config.SchedulerCfg{BatchSize: 2}, clk, r, env(model.DeviceProfile{}, model.NetworkState{}, true), nil)

	var results []<-chan Result
	for _, c := range []string{"a", "b", "c"} {
		results = append(results, s.Submit(context.Background(), Request{Container: c}))
	}

	require.Eventually(t, func() bool { return len(r.rendered()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, s.QueueLen())

	require.Eventually(t, func() bool {
		clk.Add(500 * time.Millisecond)
		return len(r.rendered()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	for _, ch := range results {
		require.NoError(t, await(t, ch).Err)
	}
}

// TestScheduler_BatchSettings derives batch size and delay from device and network.
func TestScheduler_BatchSettings(t *testing.T) {
	s := New(context.Background(), config.SchedulerCfg{}, slog.Default(), nil, nil, nil, nil)

	require.Equal(t, 2, s.batchSize(model.DeviceProfile{IsMobile: true}))
	require.Equal(t, 5, s.batchSize(model.DeviceProfile{}))

	on := model.PerformanceSettings{EnableProgressiveLoading: true}
	require.Equal(t, time.Second, s.batchDelay(model.NetworkState{EffectiveType: model.EffectiveTypeSlow2G}, on))
	require.Equal(t, 500*time.Millisecond, s.batchDelay(model.NetworkState{EffectiveType: model.EffectiveType2G}, on))
	require.Zero(t, s.batchDelay(model.NetworkState{}, model.PerformanceSettings{}))

	s.cfg = noDelay(7)
	require.Equal(t, 7, s.batchSize(model.DeviceProfile{IsMobile: true}))
	require.Zero(t, s.batchDelay(model.NetworkState{EffectiveType: model.EffectiveTypeSlow2G}, on))
}

// TestScheduler_Close fails queued requests and lets the in-flight one finish.
func TestScheduler_Close(t *testing.T) {
	r := gated()
	s := New(context.Background(), noDelay(1), slog.Default(), nil, r, env(model.DeviceProfile{}, model.NetworkState{}, true), nil)

	inflight := s.Submit(context.Background(), Request{Container: "inflight"})
	<-r.started
	queued := s.Submit(context.Background(), Request{Container: "queued"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(r.gate)
	}()
	require.NoError(t, s.Close())

	require.NoError(t, await(t, inflight).Err)
	require.ErrorIs(t, await(t, queued).Err, ErrSchedulerClosed)
	require.ErrorIs(t, await(t, s.Submit(context.Background(), Request{})).Err, ErrSchedulerClosed)
	require.Zero(t, s.QueueLen())
}
