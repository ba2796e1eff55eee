package ashperf

import (
	"github.com/Borislavv/go-ash-perf/model"
	"github.com/benbjohnson/clock"
)

type options struct {
	device   model.DeviceProvider
	network  model.NetworkProvider
	store    model.PersistentStore
	refresh  model.RefreshController
	renderer model.ChartRenderer
	clock    clock.Clock
	aliases  map[string]string
}

type Option func(*options)

// WithDeviceProvider replaces host detection (gopsutil plus config hints).
func WithDeviceProvider(p model.DeviceProvider) Option {
	return func(o *options) { o.device = p }
}

// WithNetworkProvider replaces the built-in network monitor. Background
// probing is then up to the provider.
func WithNetworkProvider(p model.NetworkProvider) Option {
	return func(o *options) { o.network = p }
}

// WithPersistentStore mirrors cache writes into s instead of the configured store.
// The optimizer does not close an injected store.
func WithPersistentStore(s model.PersistentStore) Option {
	return func(o *options) { o.store = s }
}

func WithRefreshController(r model.RefreshController) Option {
	return func(o *options) { o.refresh = r }
}

func WithChartRenderer(r model.ChartRenderer) Option {
	return func(o *options) { o.renderer = r }
}

func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithAliases replaces the key dictionary used by CompressData.
func WithAliases(aliases map[string]string) Option {
	return func(o *options) { o.aliases = aliases }
}
