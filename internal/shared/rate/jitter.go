package rate

import (
	"context"

	"go.uber.org/ratelimit"
)

// Jitter turns a ratelimit.Limiter into a channel of ticks, so workers can
// select on it together with their context. The channel is closed once ctx is done.
type Jitter struct {
	ch    chan struct{}
	l     ratelimit.Limiter
	limit int
}

// NewJitter emits up to limit ticks per second, buffering a tenth of that.
// A non-positive limit is treated as one tick per second.
func NewJitter(ctx context.Context, limit int) *Jitter {
	if limit <= 0 {
		limit = 1
	}
	brst := max(1, limit/10)

	jitter := &Jitter{
		limit: limit,
		ch:    make(chan struct{}, brst),
		l:     ratelimit.New(limit, ratelimit.WithoutSlack),
	}
	go jitter.provider(ctx)
	return jitter
}

func (l *Jitter) provider(ctx context.Context) {
	defer close(l.ch)
	for {
		l.l.Take()
		select {
		case <-ctx.Done():
			return
		case l.ch <- struct{}{}:
		}
	}
}

func (l *Jitter) Limit() int { return l.limit }

func (l *Jitter) Chan() <-chan struct{} {
	return l.ch
}
