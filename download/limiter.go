package download

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Limiter is a counting admission gate. Exactly Limit() permits exist
// for its lifetime.
type Limiter struct {
	sem   chan struct{}
	inUse atomic.Int64
}

// NewLimiter returns a Limiter with n permits. n must be at least 1.
func NewLimiter(n int) (*Limiter, error) {
	if n < 1 {
		return nil, &Error{Kind: KindConfig, Detail: fmt.Sprintf("max concurrent must be at least 1, got %d", n)}
	}

	return &Limiter{sem: make(chan struct{}, n)}, nil
}

// Acquire blocks until a permit is free or ctx ends.
func (l *Limiter) Acquire(ctx context.Context) error {
	// A cancelled caller must never win a race against a free slot.
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCancelled, Detail: "waiting for permit", Err: err}
	}

	select {
	case l.sem <- struct{}{}:
		// select picks randomly when ctx ended as a slot freed up.
		if err := ctx.Err(); err != nil {
			<-l.sem
			return &Error{Kind: KindCancelled, Detail: "waiting for permit", Err: err}
		}
		l.inUse.Add(1)
		return nil
	case <-ctx.Done():
		return &Error{Kind: KindCancelled, Detail: "waiting for permit", Err: ctx.Err()}
	}
}

// Release returns a permit taken by Acquire.
func (l *Limiter) Release() {
	l.inUse.Add(-1)

	select {
	case <-l.sem:
	default:
		panic("download: release of unacquired permit")
	}
}

// Do runs fn while holding a permit. The permit is released on every
// exit path of fn, panics included.
func (l *Limiter) Do(ctx context.Context, fn func()) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()

	fn()

	return nil
}

// InUse reports how many permits are currently held.
func (l *Limiter) InUse() int {
	return int(l.inUse.Load())
}

// Limit reports the total number of permits.
func (l *Limiter) Limit() int {
	return cap(l.sem)
}
