package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/cache"
	"github.com/Borislavv/go-ash-perf/internal/evictor"
	"github.com/Borislavv/go-ash-perf/internal/lifetimer"
	"github.com/Borislavv/go-ash-perf/internal/shared/bytes"
	"github.com/Borislavv/go-ash-perf/model"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Optimizer
	logger   *slog.Logger
	cache    cache.Cacher
	settings func() model.PerformanceSettings
	sampler  sampler
	interval time.Duration
}

func New(
	ctx context.Context,
	cfg *config.Optimizer,
	logger *slog.Logger,
	settings func() model.PerformanceSettings,
	cache cache.Cacher,
	evictor evictor.Evictor,
	lifetimer lifetimer.Lifetimer,
	scheduler SchedulerSource,
	collector CollectorSource,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	return (&Logs{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		settings: settings,
		sampler: sampler{
			cache:     cache,
			evictor:   evictor,
			lifetimer: lifetimer,
			scheduler: scheduler,
			collector: collector,
		},
		interval: cfg.Telemetry.Interval,
	}).run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	return nil
}

func (l *Logs) run() *Logs {
	if l.cfg.Telemetry.Enabled && l.interval > 0 {
		go l.loop()
	}
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	prev := l.sampler.snapshot()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			cur := l.sampler.snapshot()
			l.report(deltaSnapshot(prev, cur))
			prev = cur
		}
	}
}

func (l *Logs) report(d snapshot) {
	common := []any{"interval", l.interval.String()}
	hardLimit := l.settings().MaxCacheSize

	softLimit := "INF"
	if l.cfg.Eviction.Enabled() {
		softLimit = bytes.FmtMem(uint64(float64(hardLimit) * l.cfg.Eviction.SoftLimitCoefficient))
	}

	if l.cfg.Lifetime.Enabled() {
		l.logger.Info("lifetime_manager",
			append(common,
				"swept", int64(d.lifetimeSwept),
				"scans", int64(d.lifetimeScans),
				"hits", int64(d.lifetimeHits),
				"misses", int64(d.lifetimeMisses),
			)...,
		)
	}

	if l.cfg.Eviction.Enabled() {
		l.logger.Info("soft_evictor",
			append(common,
				"scans", int64(d.softScans),
				"hits", int64(d.softHits),
				"freed_items", int64(d.softEvictedItems),
				"freed_bytes", bytes.FmtMem(d.softEvictedBytes),
			)...,
		)
	}

	// cache eviction counters include soft evictions, the rest happened inline on put
	hardItems := delta(d.softEvictedItems, d.evictedItems)
	hardBytes := delta(d.softEvictedBytes, d.evictedBytes)
	if d.evictedItems > d.softEvictedItems {
		l.logger.Info("hard_evictor",
			append(common,
				"freed_items", int64(hardItems),
				"freed_bytes", bytes.FmtMem(hardBytes),
			)...,
		)
	}

	l.logger.Info("cache",
		append(common,
			"hits", int64(d.hits),
			"misses", int64(d.misses),
			"expired", int64(d.expiredItems),
			"store_failures", int64(d.storeFailures),
			"size", bytes.FmtMem(uint64(max(l.cache.Mem(), 0))),
			"entries", l.cache.Len(),
			"soft_limit", softLimit,
			"hard_limit", bytes.FmtMem(uint64(max(hardLimit, 0))),
		)...,
	)

	l.logger.Info("scheduler",
		append(common,
			"submitted", int64(d.submitted),
			"rendered", int64(d.rendered),
			"failed", int64(d.failed),
			"batches", int64(d.batches),
			"loads", int64(d.loads),
			"load_failures", int64(d.loadFailures),
		)...,
	)

	l.logger.Info("compression",
		append(common,
			"calls", int64(d.compressions),
			"in", bytes.FmtMem(d.compressedIn),
			"out", bytes.FmtMem(d.compressedOut),
		)...,
	)
}
