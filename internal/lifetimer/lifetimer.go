package lifetimer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/cache"
	"github.com/Borislavv/go-ash-perf/internal/shared/rate"
)

const defaultSample = 32

type Lifetimer interface {
	LifetimerMetrics() (swept, scans, hits, misses int64)
	Close() error
}

// LifetimeWorker drops expired entries in the background so that memory held
// by entries nobody reads again is released. Reads still check expiry themselves.
type LifetimeWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.LifetimerCfg
	cache    *cache.Cache
	logger   *slog.Logger
	jitter   *rate.Jitter
	counters *lifetimerCounters
	invokeCh chan struct{}
}

func New(
	ctx context.Context,
	cfg *config.LifetimerCfg,
	logger *slog.Logger,
	cache *cache.Cache,
) Lifetimer {
	if !cfg.Enabled() {
		return &NoOpLifetimer{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&LifetimeWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		cache:    cache,
		logger:   logger,
		jitter:   rate.NewJitter(ctx, cfg.Rate),
		counters: newLifetimerCounters(),
		invokeCh: make(chan struct{}, 1),
	}).run()
}

func (w *LifetimeWorker) LifetimerMetrics() (swept, scans, hits, misses int64) {
	return w.counters.snapshot()
}

func (w *LifetimeWorker) Close() error {
	w.cancel()
	return nil
}

func (w *LifetimeWorker) run() *LifetimeWorker {
	w.logger.Info("lifetimer is running", "rate", w.cfg.Rate, "sample", w.cfg.Sample)

	go func() {
		defer w.logger.Info("lifetimer is stopped")
		var wg sync.WaitGroup
		wg.Go(w.consumer)
		wg.Go(w.provider)
		wg.Wait()
	}()

	return w
}

// provider - scans the cache on every jitter tick and wakes the consumer when something expired.
func (w *LifetimeWorker) provider() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-w.jitter.Chan():
			if !ok {
				return
			}
			if w.cache.Len() == 0 {
				continue
			}

			w.counters.scans.Add(1)
			if !w.cache.HasExpired() {
				w.counters.scanMisses.Add(1)
				continue
			}
			w.counters.scanHits.Add(1)

			select {
			case w.invokeCh <- struct{}{}:
			default: // a sweep is already pending
			}
		}
	}
}

func (w *LifetimeWorker) consumer() {
	sample := w.cfg.Sample
	if sample <= 0 {
		sample = defaultSample
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.invokeCh:
			if removed := w.cache.SweepExpired(sample); removed > 0 {
				w.counters.swept.Add(removed)
				w.logger.Debug("expired entries swept", "count", removed)
			}
		}
	}
}
