package ashperf

import (
	"errors"

	"github.com/Borislavv/go-ash-perf/internal/cache"
	"github.com/Borislavv/go-ash-perf/internal/scheduler"
	"github.com/Borislavv/go-ash-perf/model"
)

var (
	ErrNotInitialized  = errors.New("optimizer is not initialized")
	ErrSchedulerClosed = scheduler.ErrSchedulerClosed
	ErrRendererMissing = scheduler.ErrRendererMissing
	ErrEntryTooLarge   = cache.ErrEntryTooLarge
	ErrNotFound        = model.ErrNotFound
)
