package model

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a PersistentStore for an absent key.
var ErrNotFound = errors.New("key not found")

type DeviceProvider interface {
	Snapshot(ctx context.Context) (DeviceProfile, error)
}

type NetworkProvider interface {
	Snapshot() NetworkState
	// ProbeSpeed never fails: errors and timeouts yield SpeedUnknown.
	ProbeSpeed(ctx context.Context) Speed
	// OnChange registers cb for live updates. The returned func unsubscribes and is idempotent.
	OnChange(cb func(NetworkState)) (unsubscribe func())
}

// PersistentStore is a string key-value store mirroring the cache.
// The cache swallows every error it returns.
type PersistentStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

type RefreshController interface {
	PauseRefresh()
	ResumeRefresh()
}

type ChartRenderer interface {
	Render(ctx context.Context, cfg ChartConfig, container string) (RenderResult, error)
}
