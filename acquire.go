package pool

import (
	"context"
	"time"
)

// effectiveTimeout resolves the acquire timeout for a single Get call:
// the caller-supplied timeout if given, falling back to the pool's
// default (Config.Timeout); when both are set, the smaller of the two
// wins.
func (p *Pool[R]) effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return p.cfg.Timeout
	}
	if p.cfg.Timeout > 0 && p.cfg.Timeout < timeout {
		return p.cfg.Timeout
	}
	return timeout
}

// Get returns a resource the caller may use until it calls Put. timeout
// overrides the pool's default acquire timeout for this call only; 0
// means "use the pool default" (itself 0 meaning wait forever).
//
// Get fails with ErrPoolShutdown on a shut-down pool, and with
// ErrTimeout if the capacity gate is not released in time. A factory
// error during creation is propagated to the caller after releasing the
// capacity permit it had acquired.
func (p *Pool[R]) Get(ctx context.Context, timeout time.Duration) (R, error) {
	var zero R

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return zero, ErrPoolShutdown
	}
	p.mu.Unlock()

	if err := p.gate.acquire(ctx, p.effectiveTimeout(timeout)); err != nil {
		return zero, err
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		p.gate.release()
		return zero, ErrPoolShutdown
	}
	needCreate := len(p.avail) == 0
	p.mu.Unlock()

	if needCreate {
		if _, err := p.new(); err != nil {
			p.gate.release()
			return zero, err
		}
	}

	p.mu.Lock()
	var r R
	for k := range p.avail {
		r = k
		break
	}
	delete(p.avail, r)
	p.using[r] = struct{}{}
	p.counters.nuses++
	if ui, ok := p.uses[r]; ok {
		ui.Uses++
		ui.LastGet = now()
	}
	p.mu.Unlock()

	p.runHook("getter", p.cfg.Getter, r)
	return r, nil
}

// Put returns a resource previously obtained from Get. Calling Put
// twice for the same resource, or returning a resource that was killed
// by the housekeeper, is tolerated: it logs an "unexpected return"
// warning and otherwise does nothing.
func (p *Pool[R]) Put(r R) {
	p.runHook("retter", p.cfg.Retter, r)

	p.mu.Lock()
	if _, ok := p.using[r]; !ok {
		p.mu.Unlock()
		p.warnUnexpectedReturn(r)
		return
	}

	wornOut := false
	if p.cfg.MaxUse > 0 {
		if ui, ok := p.uses[r]; ok && ui.Uses >= p.cfg.MaxUse {
			wornOut = true
		}
	}
	if wornOut {
		p.outLocked(r)
		p.counters.nwornout++
	} else {
		delete(p.using, r)
		p.avail[r] = struct{}{}
		if ui, ok := p.uses[r]; ok {
			ui.LastRet = now()
		}
	}
	p.mu.Unlock()

	p.gate.release()

	p.runDeferredDestruction()
	p.refill()
}

// Do runs fn with a resource acquired via Get, guaranteeing Put runs on
// every exit path (normal return, error, or panic).
func (p *Pool[R]) Do(ctx context.Context, timeout time.Duration, fn func(R) error) error {
	r, err := p.Get(ctx, timeout)
	if err != nil {
		return err
	}
	defer p.Put(r)
	return fn(r)
}

// warnUnexpectedReturn logs a double-return or return-after-kill, using
// the tracer hook or a default rendering to identify the resource.
func (p *Pool[R]) warnUnexpectedReturn(r R) {
	Logger().Warn().Str("resource", p.describe(r)).Msg("pool: unexpected return")
}

// runDeferredDestruction atomically drains todel under lock, then runs
// the closer hook on each entry outside the lock.
func (p *Pool[R]) runDeferredDestruction() {
	p.mu.Lock()
	drained := p.drainTodelLocked()
	if len(drained) > 0 {
		p.counters.ndestroys += uint64(len(drained))
	}
	p.mu.Unlock()

	for _, r := range drained {
		p.destroy(r)
	}
}

// refill creates resources, without blocking, until nobjs reaches
// MinSize, swallowing and logging factory errors so a transient backend
// outage does not crash the pool.
func (p *Pool[R]) refill() {
	for {
		p.mu.Lock()
		full := p.shutdown || int64(p.nobjs) >= p.cfg.MinSize
		p.mu.Unlock()
		if full {
			return
		}
		if !p.gate.tryAcquire() {
			return
		}
		_, err := p.new()
		p.gate.release()
		if err != nil {
			Logger().Error().Err(err).Msg("pool: refill factory error")
			return
		}
	}
}
