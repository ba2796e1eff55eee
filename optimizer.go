package ashperf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/cache"
	"github.com/Borislavv/go-ash-perf/internal/cache/dump"
	"github.com/Borislavv/go-ash-perf/internal/compressor"
	"github.com/Borislavv/go-ash-perf/internal/device"
	"github.com/Borislavv/go-ash-perf/internal/evictor"
	"github.com/Borislavv/go-ash-perf/internal/lifetimer"
	"github.com/Borislavv/go-ash-perf/internal/metrics"
	"github.com/Borislavv/go-ash-perf/internal/network"
	"github.com/Borislavv/go-ash-perf/internal/policy"
	"github.com/Borislavv/go-ash-perf/internal/scheduler"
	"github.com/Borislavv/go-ash-perf/internal/store"
	"github.com/Borislavv/go-ash-perf/internal/telemetry"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

type AshPerf interface {
	Initialize(ctx context.Context) error
	IsInitialized() bool
	CompressData(payload any) (any, error)
	CacheData(key string, value any, ttl time.Duration) error
	GetCachedData(key string) (json.RawMessage, error)
	LoadChartProgressively(ctx context.Context, cfg model.ChartConfig, container string, priority int) (model.RenderResult, error)
	AdjustPerformanceForNetwork() error
	PerformanceMetrics() model.Metrics
	OptimizationStatus() model.Status
	HandleVisibilityChange(hidden bool)
	SetPerformanceSettings(s model.PerformanceSettings) error
	Destroy()
	io.Closer
}

var _ AshPerf = (*Optimizer)(nil)

// workers are started by Initialize and stopped by Destroy.
type workers struct {
	cancel    context.CancelFunc
	scheduler *scheduler.Scheduler
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
	telemetry telemetry.Logger
}

// Optimizer adapts compression, chart loading and caching to the device and network.
type Optimizer struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Optimizer
	logger *slog.Logger
	opts   options

	compressor *compressor.Compressor
	collector  *metrics.Collector
	cache      *cache.Cache
	dumper     dump.Dumper

	settings atomic.Pointer[model.PerformanceSettings]
	profile  atomic.Pointer[model.DeviceProfile]

	mu          sync.Mutex // guards the lifecycle below
	initialized atomic.Bool
	unsubscribe []func()
	workers     *workers

	monitor   *network.Monitor // owned network monitor, nil when injected
	closers   []io.Closer      // owned resources, closed by Close
	closeOnce sync.Once
}

func New(ctx context.Context, cfg *config.Optimizer, logger *slog.Logger, opts ...Option) (*Optimizer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.AdjustConfig()
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	o := &Optimizer{ctx: ctx, cancel: cancel, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(&o.opts)
	}
	if o.opts.clock == nil {
		o.opts.clock = clock.New()
	}
	if o.opts.device == nil {
		o.opts.device = device.NewSystem(cfg.Device, logger)
	}
	if o.opts.network == nil {
		o.monitor = network.New(ctx, cfg.Network, logger, network.WithClock(o.opts.clock))
		o.opts.network = o.monitor
		o.closers = append(o.closers, o.monitor)
	}
	if o.opts.store == nil && cfg.Store.Enabled() {
		db, err := store.OpenBadger(cfg.Store, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open persistent store: %w", err)
		}
		o.opts.store = db
		o.closers = append(o.closers, db)
	}

	initial := policy.Recompute(cfg.Features, model.DeviceProfile{}, o.opts.network.Snapshot())
	o.settings.Store(&initial)
	o.profile.Store(&model.DeviceProfile{})

	c, err := cache.New(cfg, o.Settings, o.opts.store, o.opts.clock, logger)
	if err != nil {
		o.closeOwned()
		cancel()
		return nil, fmt.Errorf("create cache: %w", err)
	}
	o.cache = c
	o.compressor = compressor.New(o.opts.aliases)
	o.collector = metrics.NewCollector(c.Stats)
	o.dumper = dump.New(cfg.Persistence, c)
	return o, nil
}

// Initialize detects the device and network, derives the settings and starts
// background workers. It is a no-op once it succeeded; a failed device
// detection is returned and the call may be retried.
func (o *Optimizer) Initialize(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized.Load() {
		return nil
	}
	if err := o.ctx.Err(); err != nil {
		return err
	}

	profile, err := o.opts.device.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("detect device: %w", err)
	}
	o.profile.Store(&profile)

	features := o.features()
	if features.NetworkAwareness && o.cfg.Network.ProbeURL != "" {
		o.opts.network.ProbeSpeed(ctx)
	}
	settings := policy.Recompute(o.cfg.Features, profile, o.opts.network.Snapshot())
	o.settings.Store(&settings)

	if features.NetworkAwareness {
		o.unsubscribe = append(o.unsubscribe, o.opts.network.OnChange(o.onNetworkChange))
	}
	o.startWorkers()

	if o.cfg.Persistence.Enabled() && o.cfg.Persistence.RestoreOnInit {
		if err = o.dumper.Load(ctx); err != nil && !errors.Is(err, dump.ErrNoDump) {
			o.logger.Warn("cache dump restore failed", "err", err)
		}
	}

	o.initialized.Store(true)
	o.logger.Info("optimizer initialized",
		"mobile", profile.IsMobile,
		"tablet", profile.IsTablet,
		"effective_type", o.opts.network.Snapshot().EffectiveType,
		"compression_level", settings.CompressionLevel,
		"image_quality", settings.ImageQuality,
		"max_cache_size", settings.MaxCacheSize,
	)
	return nil
}

func (o *Optimizer) IsInitialized() bool {
	return o.initialized.Load()
}

// Settings returns the current performance settings.
func (o *Optimizer) Settings() model.PerformanceSettings {
	return *o.settings.Load()
}

// SetPerformanceSettings overrides the policy output until the next network change.
func (o *Optimizer) SetPerformanceSettings(s model.PerformanceSettings) error {
	if !o.initialized.Load() {
		return ErrNotInitialized
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid performance settings: %w", err)
	}
	o.settings.Store(&s)
	return nil
}

// CompressData returns the compressed text of payload at the current level.
// The payload is returned unchanged when compression is disabled or the payload
// cannot be serialized; ErrNotInitialized is the only error.
func (o *Optimizer) CompressData(payload any) (any, error) {
	if !o.initialized.Load() {
		return payload, ErrNotInitialized
	}
	s := o.Settings()
	if !s.EnableDataCompression {
		return payload, nil
	}

	in, out, err := o.compressor.Compress(payload, s.CompressionLevel)
	if err != nil {
		o.logger.Warn("payload compression failed, returning original", "err", err)
		return payload, nil
	}
	o.collector.RecordCompression(s.CompressionLevel, len(in), len(out))
	return out, nil
}

// ExpandData reverts key aliases applied by CompressData.
func (o *Optimizer) ExpandData(compressed string) string {
	return o.compressor.Expand(compressed)
}

// CacheData stores value for ttl (the configured default when zero).
// It does nothing when caching is disabled by the current settings.
func (o *Optimizer) CacheData(key string, value any, ttl time.Duration) error {
	if !o.initialized.Load() {
		return ErrNotInitialized
	}
	if !o.Settings().EnableMobileCaching {
		return nil
	}
	return o.cache.Put(key, value, ttl)
}

// GetCachedData returns the serialized value or ErrNotFound. A memory miss
// falls back to the mirror store, so entries survive a restart.
func (o *Optimizer) GetCachedData(key string) (json.RawMessage, error) {
	if !o.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if data, ok := o.cache.GetOrLoad(key); ok {
		return data, nil
	}
	return nil, ErrNotFound
}

// Cached reads a cached value back into T. Byte slices are returned as stored,
// strings are unquoted when they hold a JSON string, everything else is decoded from JSON.
func Cached[T any](o *Optimizer, key string) (T, error) {
	var v T
	data, err := o.GetCachedData(key)
	if err != nil {
		return v, err
	}
	switch dst := any(&v).(type) {
	case *string:
		if json.Unmarshal(data, dst) != nil {
			*dst = string(data)
		}
	case *[]byte:
		*dst = append([]byte(nil), data...)
	default:
		if err = json.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("decode cached %q: %w", key, err)
		}
	}
	return v, nil
}

// LoadChartProgressively queues a chart and waits for its result or ctx.
// A cancelled ctx stops waiting only; the load still settles in the background.
func (o *Optimizer) LoadChartProgressively(
	ctx context.Context,
	cfg model.ChartConfig,
	container string,
	priority int,
) (model.RenderResult, error) {
	o.mu.Lock()
	w := o.workers
	o.mu.Unlock()
	if w == nil || !o.initialized.Load() {
		return model.RenderResult{}, ErrNotInitialized
	}

	ch := w.scheduler.Submit(ctx, scheduler.Request{Config: cfg, Container: container, Priority: priority})
	select {
	case <-ctx.Done():
		return model.RenderResult{}, ctx.Err()
	case res := <-ch:
		return res.RenderResult, res.Err
	}
}

// AdjustPerformanceForNetwork re-applies the network rules to the current settings.
func (o *Optimizer) AdjustPerformanceForNetwork() error {
	if !o.initialized.Load() {
		return ErrNotInitialized
	}
	o.applyNetwork(o.opts.network.Snapshot())
	return nil
}

// HandleVisibilityChange pauses host refreshes while the view is hidden.
func (o *Optimizer) HandleVisibilityChange(hidden bool) {
	if !o.initialized.Load() || o.opts.refresh == nil {
		return
	}
	if hidden {
		o.opts.refresh.PauseRefresh()
	} else {
		o.opts.refresh.ResumeRefresh()
	}
}

// DumpCache writes live cache entries to the configured dump directory.
func (o *Optimizer) DumpCache(ctx context.Context) error {
	return o.dumper.Dump(ctx)
}

// RestoreCache loads the newest dump into the cache.
func (o *Optimizer) RestoreCache(ctx context.Context) error {
	return o.dumper.Load(ctx)
}

// Registry exposes the prometheus collectors of this optimizer.
func (o *Optimizer) Registry() *prometheus.Registry {
	return o.collector.Registry()
}

func (o *Optimizer) MetricsHandler() http.Handler {
	return o.collector.Handler()
}

// Destroy unsubscribes listeners, stops workers, clears the cache and resets
// metrics. The optimizer may be initialized again afterwards.
func (o *Optimizer) Destroy() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, unsubscribe := range o.unsubscribe {
		unsubscribe()
	}
	o.unsubscribe = nil
	o.stopWorkers()

	o.cache.Clear()
	o.collector.Reset()
	if o.initialized.Swap(false) {
		o.logger.Info("optimizer destroyed")
	}
}

// Close destroys the optimizer and releases owned resources. It is idempotent.
func (o *Optimizer) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.Destroy()
		o.cancel()
		err = errors.Join(o.closeOwned(), o.cache.Close())
	})
	return err
}

/**
 * Private API.
 */

func (o *Optimizer) features() *config.FeaturesCfg {
	if o.cfg.Features == nil {
		return config.AllFeatures()
	}
	return o.cfg.Features
}

func (o *Optimizer) onNetworkChange(state model.NetworkState) {
	if !o.initialized.Load() {
		return
	}
	o.applyNetwork(state)
}

// applyNetwork retries until no concurrent override slipped in between the
// read and the write, so neither side is lost.
func (o *Optimizer) applyNetwork(state model.NetworkState) {
	var cur, next model.PerformanceSettings
	for {
		prev := o.settings.Load()
		cur = *prev
		next = policy.ApplyNetwork(o.cfg.Features, cur, state)
		if o.settings.CompareAndSwap(prev, &next) {
			break
		}
	}
	if next != cur {
		o.logger.Info("performance settings adjusted for network",
			"effective_type", state.EffectiveType,
			"save_data", state.SaveData,
			"compression_level", next.CompressionLevel,
			"image_quality", next.ImageQuality,
		)
	}
}

func (o *Optimizer) environment() (model.DeviceProfile, model.NetworkState, model.PerformanceSettings) {
	return *o.profile.Load(), o.opts.network.Snapshot(), o.Settings()
}

// startWorkers must be called under mu.
func (o *Optimizer) startWorkers() {
	ctx, cancel := context.WithCancel(o.ctx)
	w := &workers{cancel: cancel}
	w.scheduler = scheduler.New(ctx, o.cfg.Scheduler, o.logger, o.opts.clock, o.opts.renderer, o.environment, o.collector.RecordLoad)
	w.evictor = evictor.New(ctx, o.cfg.Eviction, o.logger, o.opts.clock, o.cache, o.collector.RecordEviction)
	w.lifetimer = lifetimer.New(ctx, o.cfg.Lifetime, o.logger, o.cache)
	w.telemetry = telemetry.New(ctx, o.cfg, o.logger, o.Settings, o.cache, w.evictor, w.lifetimer, w.scheduler, o.collector)
	if o.monitor != nil {
		o.monitor.Run(ctx)
	}
	o.workers = w
}

// stopWorkers must be called under mu.
func (o *Optimizer) stopWorkers() {
	if o.workers == nil {
		return
	}
	w := o.workers
	o.workers = nil

	_ = w.scheduler.Close()
	_ = w.evictor.Close()
	_ = w.lifetimer.Close()
	_ = w.telemetry.Close()
	w.cancel()
}

func (o *Optimizer) closeOwned() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}
