package pool

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// gate is the capacity semaphore bounding concurrently-lent resources: a
// counting semaphore of initial value maxSize, disabled (ungated) when
// maxSize is 0. It is the sole mechanism enforcing max_size — every
// acquired permit has a matched release on every exit path of Get/Put.
//
// semaphore.Weighted does not expose how many of its weight units are
// currently held, which Stats needs to report a "semaphore value". held
// tracks that count alongside the semaphore itself.
type gate struct {
	sem   *semaphore.Weighted
	total int64
	held  atomic.Int64
}

func newGate(maxSize int64) *gate {
	if maxSize <= 0 {
		return &gate{}
	}
	return &gate{sem: semaphore.NewWeighted(maxSize), total: maxSize}
}

// enabled reports whether this gate enforces a bound at all.
func (g *gate) enabled() bool {
	return g.sem != nil
}

// acquire blocks for at most timeout (0 means wait forever) trying to
// take one permit. Returns ErrTimeout on expiry. A disabled gate always
// succeeds immediately.
func (g *gate) acquire(ctx context.Context, timeout time.Duration) error {
	if g.sem == nil {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return ErrTimeout
	}
	g.held.Add(1)
	return nil
}

// tryAcquire takes one permit without blocking. Used by borrow and by
// refill, both of which must not stall on contention. A disabled gate
// always succeeds.
func (g *gate) tryAcquire() bool {
	if g.sem == nil {
		return true
	}
	if g.sem.TryAcquire(1) {
		g.held.Add(1)
		return true
	}
	return false
}

// release returns one permit. No-op on a disabled gate.
func (g *gate) release() {
	if g.sem == nil {
		return
	}
	g.sem.Release(1)
	g.held.Add(-1)
}

// value returns the number of permits currently available (total - held).
func (g *gate) value() int64 {
	if g.sem == nil {
		return 0
	}
	return g.total - g.held.Load()
}
