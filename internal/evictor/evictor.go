package evictor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/benbjohnson/clock"
)

const (
	ReasonExpired   = "expired"
	ReasonSoftLimit = "soft_limit"

	defaultSpinsBackoff = 2048
)

var ErrEvictorNotResponded = errors.New("evictor not responded")

type Evictor interface {
	ForceCall(timeout time.Duration) error
	EvictorMetrics() (scans, hits, evictedItems, evictedBytes int64)
	Close() error
}

// Target is the part of the cache the evictor trims.
type Target interface {
	Len() int64
	SoftMemoryLimitOvercome() bool
	SweepExpired(limit int) (removed int64)
	SoftEvictUntilWithinLimit(backoff int64) (freed, evicted int64)
}

// Observer receives every pass that removed something.
type Observer func(reason string, items, bytes int64)

// EvictionWorker brings the cache back under its soft limit between puts.
// Expired entries are dropped first; live entries go, oldest first, only
// when that was not enough. The hard limit is enforced by cache.Put itself.
type EvictionWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.EvictionCfg
	logger   *slog.Logger
	target   Target
	observe  Observer
	spins    int64
	ticker   *clock.Ticker
	counters *evictorCounters
	invokeCh chan struct{}
	wg       sync.WaitGroup
}

func New(
	ctx context.Context,
	cfg *config.EvictionCfg,
	logger *slog.Logger,
	clk clock.Clock,
	target Target,
	observe Observer,
) Evictor {
	if !cfg.Enabled() {
		return &NoOpEvictor{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if observe == nil {
		observe = func(string, int64, int64) {}
	}

	spins := cfg.BackoffSpinsPerCall
	if spins <= 0 {
		spins = defaultSpinsBackoff
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&EvictionWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		target:   target,
		observe:  observe,
		spins:    spins,
		ticker:   clk.Ticker(time.Second / time.Duration(max(cfg.CallsPerSec, 1))),
		counters: newEvictorCounters(),
		invokeCh: make(chan struct{}),
	}).run()
}

// ForceCall runs one pass now, even below the soft limit, and waits until the
// worker accepted it.
func (w *EvictionWorker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrEvictorNotResponded
	}
	return nil
}

func (w *EvictionWorker) EvictorMetrics() (scans, hits, evictedItems, evictedBytes int64) {
	return w.counters.snapshot()
}

// Close stops the worker and waits for the running pass.
func (w *EvictionWorker) Close() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *EvictionWorker) run() *EvictionWorker {
	w.logger.Info("evictor is running",
		"calls_per_sec", w.cfg.CallsPerSec,
		"soft_limit_coefficient", w.cfg.SoftLimitCoefficient,
		"backoff_spins", w.spins,
	)

	w.wg.Go(func() {
		defer w.logger.Info("evictor is stopped")
		defer w.ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-w.ticker.C:
				w.pass(false)
			case <-w.invokeCh:
				w.pass(true)
			}
		}
	})

	return w
}

func (w *EvictionWorker) pass(forced bool) {
	if w.target.Len() == 0 {
		return
	}
	w.counters.scans.Add(1)
	if !forced && !w.target.SoftMemoryLimitOvercome() {
		return
	}
	w.counters.scanHits.Add(1)

	if swept := w.target.SweepExpired(int(w.spins)); swept > 0 {
		w.observe(ReasonExpired, swept, 0)
	}
	if !w.target.SoftMemoryLimitOvercome() {
		return
	}

	freed, items := w.target.SoftEvictUntilWithinLimit(w.spins)
	if items > 0 {
		w.counters.evictedItems.Add(items)
		w.counters.evictedBytes.Add(freed)
		w.observe(ReasonSoftLimit, items, freed)
		w.logger.Debug("soft limit eviction", "items", items, "freed", freed)
	}
}
