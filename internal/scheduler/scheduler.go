package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

const (
	mobileBatchSize  = 2
	desktopBatchSize = 5

	slowBatchDelay    = time.Second
	defaultBatchDelay = 500 * time.Millisecond
)

var (
	ErrSchedulerClosed = errors.New("scheduler is closed")
	ErrRendererMissing = errors.New("chart renderer is not configured")
)

// Request is a single chart load. ID is generated when empty.
type Request struct {
	ID        string
	Config    model.ChartConfig
	Container string
	// Priority orders the queue, higher first. Equal priorities keep submission order.
	Priority int
}

type Result struct {
	ID string
	model.RenderResult
	Err error
}

// Environment returns the inputs the scheduler adapts to. It is read for
// every batch, so policy changes apply to the next one.
type Environment func() (model.DeviceProfile, model.NetworkState, model.PerformanceSettings)

// LoadObserver receives the latency of every settled load, from submit to result.
type LoadObserver func(d time.Duration, err error)

type item struct {
	Request
	ctx       context.Context
	seq       uint64
	submitted time.Time
	result    chan Result
}

// Scheduler renders charts in priority ordered batches. At most one drain
// goroutine runs at a time; the loading flag is its only guard.
type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      config.SchedulerCfg
	logger   *slog.Logger
	clock    clock.Clock
	renderer model.ChartRenderer
	env      Environment
	observe  LoadObserver

	mu     sync.Mutex
	queue  []*item
	seq    uint64
	closed bool

	loading  atomic.Bool
	counters *counters
	wg       sync.WaitGroup
}

func New(
	ctx context.Context,
	cfg config.SchedulerCfg,
	logger *slog.Logger,
	clk clock.Clock,
	renderer model.ChartRenderer,
	env Environment,
	observe LoadObserver,
) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	if clk == nil {
		clk = clock.New()
	}
	if observe == nil {
		observe = func(time.Duration, error) {}
	}
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		renderer: renderer,
		env:      env,
		observe:  observe,
		counters: &counters{},
	}
}

// Submit queues req and returns a channel receiving exactly one Result.
// When progressive loading is disabled the chart is rendered right away, unoptimized.
// Cancelling ctx does not withdraw the request; the caller simply stops waiting.
func (s *Scheduler) Submit(ctx context.Context, req Request) <-chan Result {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	it := &item{
		Request:   req,
		ctx:       context.WithoutCancel(ctx),
		submitted: s.clock.Now(),
		result:    make(chan Result, 1),
	}
	s.counters.submitted.Add(1)

	if s.renderer == nil {
		s.settle(it, model.RenderResult{}, ErrRendererMissing)
		return it.result
	}

	_, _, settings := s.env()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.settle(it, model.RenderResult{}, ErrSchedulerClosed)
		return it.result
	}
	if !settings.EnableProgressiveLoading {
		s.wg.Go(func() { s.process(it, false) })
		return it.result
	}

	s.seq++
	it.seq = s.seq
	s.queue = append(s.queue, it)
	s.kick()
	return it.result
}

// QueueLen is the number of requests waiting for a batch.
func (s *Scheduler) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Loading reports whether a drain is in progress.
func (s *Scheduler) Loading() bool {
	return s.loading.Load()
}

func (s *Scheduler) SchedulerMetrics() (submitted, rendered, failed, batches int64) {
	return s.counters.snapshot()
}

// Close stops draining between batches, fails queued requests with
// ErrSchedulerClosed and waits for in-flight renders to settle.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.failQueued(ErrSchedulerClosed)
	return nil
}

/**
 * Private API.
 */

// kick must be called under mu, so it never races Close's wait.
func (s *Scheduler) kick() {
	if s.loading.CompareAndSwap(false, true) {
		s.wg.Go(s.drain)
	}
}

func (s *Scheduler) drain() {
	for {
		for {
			if s.ctx.Err() != nil {
				s.failQueued(ErrSchedulerClosed)
				break
			}

			device, network, settings := s.env()
			batch := s.nextBatch(s.batchSize(device))
			if len(batch) == 0 {
				break
			}
			s.runBatch(batch)

			if s.QueueLen() > 0 {
				if delay := s.batchDelay(network, settings); delay > 0 {
					select {
					case <-s.ctx.Done():
					case <-s.clock.After(delay):
					}
				}
			}
		}

		s.loading.Store(false)
		// a submit may have enqueued after the last empty check but before the flag was cleared
		if s.QueueLen() == 0 || s.ctx.Err() != nil || !s.loading.CompareAndSwap(false, true) {
			return
		}
	}
}

// nextBatch pops up to size highest priority requests, submission order on ties.
func (s *Scheduler) nextBatch(size int) []*item {
	s.mu.Lock()
	defer s.mu.Unlock()

	slices.SortStableFunc(s.queue, func(a, b *item) int {
		if a.Priority != b.Priority {
			return cmp.Compare(b.Priority, a.Priority)
		}
		return cmp.Compare(a.seq, b.seq)
	})

	n := min(size, len(s.queue))
	batch := slices.Clone(s.queue[:n])
	s.queue = slices.Delete(s.queue, 0, n)
	return batch
}

func (s *Scheduler) runBatch(batch []*item) {
	s.counters.batches.Add(1)
	s.logger.Debug("rendering chart batch", "size", len(batch), "queued", s.QueueLen())

	var wg sync.WaitGroup
	for _, it := range batch {
		wg.Go(func() { s.process(it, true) })
	}
	wg.Wait()
}

func (s *Scheduler) process(it *item, optimize bool) {
	cfg := it.Config.Clone()
	if optimize {
		device, network, settings := s.env()
		cfg = OptimizeChart(cfg, device, network, settings)
	}

	res, err := s.render(it, cfg)
	if err == nil {
		res = model.RenderResult{Success: true, Config: cfg, Container: it.Container, Optimized: optimize}
	}
	s.settle(it, res, err)
}

func (s *Scheduler) render(it *item, cfg model.ChartConfig) (res model.RenderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render %s panicked: %v", it.ID, r)
		}
	}()
	if res, err = s.renderer.Render(it.ctx, cfg, it.Container); err != nil {
		return res, fmt.Errorf("render %s: %w", it.ID, err)
	}
	return res, nil
}

func (s *Scheduler) settle(it *item, res model.RenderResult, err error) {
	if err != nil {
		s.counters.failed.Add(1)
		s.logger.Warn("chart load failed", "id", it.ID, "container", it.Container, "err", err)
		res = model.RenderResult{Container: it.Container}
	} else {
		s.counters.rendered.Add(1)
	}
	s.observe(s.clock.Since(it.submitted), err)

	it.result <- Result{ID: it.ID, RenderResult: res, Err: err}
	close(it.result)
}

func (s *Scheduler) failQueued(err error) {
	s.mu.Lock()
	queued := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, it := range queued {
		s.settle(it, model.RenderResult{}, err)
	}
}

func (s *Scheduler) batchSize(device model.DeviceProfile) int {
	if s.cfg.BatchSize > 0 {
		return s.cfg.BatchSize
	}
	if device.IsMobile {
		return mobileBatchSize
	}
	return desktopBatchSize
}

func (s *Scheduler) batchDelay(network model.NetworkState, settings model.PerformanceSettings) time.Duration {
	switch {
	case s.cfg.BatchDelay != nil:
		return *s.cfg.BatchDelay
	case !settings.EnableProgressiveLoading:
		return 0
	case network.EffectiveType == model.EffectiveTypeSlow2G:
		return slowBatchDelay
	default:
		return defaultBatchDelay
	}
}
