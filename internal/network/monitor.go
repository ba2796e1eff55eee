package network

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
)

const (
	FastThreshold   = 100 * time.Millisecond
	MediumThreshold = 500 * time.Millisecond
)

type subscriber struct {
	id uint64
	cb func(model.NetworkState)
}

// Monitor holds the latest network state and notifies observers on every change.
// The host pushes live signals with Update; ProbeSpeed measures latency itself.
type Monitor struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.NetworkCfg
	logger *slog.Logger
	client *http.Client
	clock  clock.Clock

	mu     sync.RWMutex
	state  model.NetworkState
	subs   []subscriber
	nextID uint64

	wg sync.WaitGroup
}

type Option func(*Monitor)

// WithHTTPClient replaces the probe client. The probe timeout still applies per request.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Monitor) { m.client = client }
}

func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) { m.clock = clk }
}

func New(ctx context.Context, cfg config.NetworkCfg, logger *slog.Logger, opts ...Option) *Monitor {
	ctx, cancel := context.WithCancel(ctx)
	m := &Monitor{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger,
		client: http.DefaultClient,
		clock:  clock.New(),
		state: model.NetworkState{
			Type:          cfg.Type,
			EffectiveType: cfg.EffectiveType,
			Downlink:      cfg.Downlink,
			RTT:           cfg.RTT,
			SaveData:      cfg.SaveData,
		}.Normalize(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.ProbeTimeout <= 0 {
		m.cfg.ProbeTimeout = config.DefaultProbeTimeout
	}
	return m
}

func (m *Monitor) Snapshot() model.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnChange registers cb. Observers run synchronously in registration order.
func (m *Monitor) OnChange(cb func(model.NetworkState)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, cb: cb})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.subs = slices.DeleteFunc(m.subs, func(s subscriber) bool { return s.id == id })
		})
	}
}

// Update replaces the state wholesale and notifies observers.
func (m *Monitor) Update(state model.NetworkState) {
	state = state.Normalize()

	m.mu.Lock()
	m.state = state
	subs := slices.Clone(m.subs)
	m.mu.Unlock()

	m.logger.Debug("network state changed",
		"effective_type", state.EffectiveType,
		"downlink", state.Downlink,
		"rtt", state.RTT,
		"save_data", state.SaveData,
		"speed", state.EstimatedSpeed,
	)
	for _, s := range subs {
		s.cb(state)
	}
}

// ProbeSpeed times a GET of the probe resource. It never fails: a missing URL,
// a transport error, a non-2xx status or the timeout all yield SpeedUnknown.
// The outcome is merged into the current state and observers are notified.
func (m *Monitor) ProbeSpeed(ctx context.Context) model.Speed {
	speed := m.probe(ctx)

	state := m.Snapshot()
	state.EstimatedSpeed = speed
	m.Update(state)
	return speed
}

func (m *Monitor) probe(ctx context.Context) model.Speed {
	if m.cfg.ProbeURL == "" {
		return model.SpeedUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		m.logger.Warn("network probe request is invalid", "url", m.cfg.ProbeURL, "err", err)
		return model.SpeedUnknown
	}
	req.Header.Set("Cache-Control", "no-cache")

	start := m.clock.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("network probe failed", "url", m.cfg.ProbeURL, "err", err)
		return model.SpeedUnknown
	}
	defer func() { _ = resp.Body.Close() }()

	if _, err = io.Copy(io.Discard, resp.Body); err != nil {
		m.logger.Warn("network probe body read failed", "url", m.cfg.ProbeURL, "err", err)
		return model.SpeedUnknown
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.logger.Warn("network probe got unexpected status", "url", m.cfg.ProbeURL, "status", resp.StatusCode)
		return model.SpeedUnknown
	}

	return Classify(m.clock.Since(start))
}

// Classify maps a probe duration to a speed class.
func Classify(elapsed time.Duration) model.Speed {
	switch {
	case elapsed < FastThreshold:
		return model.SpeedFast
	case elapsed < MediumThreshold:
		return model.SpeedMedium
	default:
		return model.SpeedSlow
	}
}

// Run starts periodic probing when a probe url and interval are configured.
// Probing stops when ctx is done or the monitor is closed.
func (m *Monitor) Run(ctx context.Context) {
	if m.cfg.ProbeURL == "" || m.cfg.ProbeInterval <= 0 {
		return
	}

	m.logger.Info("network prober is running", "url", m.cfg.ProbeURL, "interval", m.cfg.ProbeInterval)
	m.wg.Go(func() {
		defer m.logger.Info("network prober is stopped")

		ticker := m.clock.Ticker(m.cfg.ProbeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.ProbeSpeed(ctx)
			}
		}
	})
}

// Close stops background probing and drops every observer.
func (m *Monitor) Close() error {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.subs = nil
	m.mu.Unlock()
	return nil
}
