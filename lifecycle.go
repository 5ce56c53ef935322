package pool

// create invokes the factory with a strictly increasing creation index
// and registers the result. ncreating is bumped under lock before the
// (possibly blocking) factory call, which runs outside the lock; on
// success the resource is registered under lock and ncreated is bumped.
func (p *Pool[R]) create() (R, error) {
	var zero R
	p.mu.Lock()
	p.counters.ncreating++
	idx := p.nextIdx
	p.nextIdx++
	p.mu.Unlock()

	r, err := p.cfg.Fun(idx)
	if err != nil {
		return zero, err
	}

	p.mu.Lock()
	p.registerLocked(r)
	p.counters.ncreated++
	p.mu.Unlock()
	return r, nil
}

// new creates a resource, runs the opener hook outside the lock
// (failures logged, not propagated), then makes it available. Returns
// the factory error, if any, so the caller can release the capacity
// permit it was holding.
func (p *Pool[R]) new() (R, error) {
	r, err := p.create()
	if err != nil {
		var zero R
		return zero, err
	}
	p.runHook("opener", p.cfg.Opener, r)
	p.mu.Lock()
	p.avail[r] = struct{}{}
	p.mu.Unlock()
	return r, nil
}

// destroy runs the closer hook (failures logged, not propagated). It does
// not touch ndestroys; runDeferredDestruction counts what it drains.
// Always called outside the lock: closers may perform network I/O.
func (p *Pool[R]) destroy(r R) {
	p.runHook("closer", p.cfg.Closer, r)
}

// runHook invokes a Hook if configured, logging (never propagating) any
// error it returns.
func (p *Pool[R]) runHook(name string, h Hook[R], r R) {
	if h == nil {
		return
	}
	if err := h(r); err != nil {
		Logger().Error().Err(err).Str("hook", name).Msg("pool: hook failed")
	}
}

// borrow is the internal, best-effort variant of Get used by health
// checks: it takes a permit non-blockingly and moves r from avail to
// using, bumping nborrows. It never creates a resource and never blocks.
func (p *Pool[R]) borrow(r R) bool {
	if !p.gate.tryAcquire() {
		return false
	}
	p.mu.Lock()
	if _, ok := p.avail[r]; !ok {
		p.mu.Unlock()
		p.gate.release()
		return false
	}
	delete(p.avail, r)
	p.using[r] = struct{}{}
	p.counters.nborrows++
	if ui, ok := p.uses[r]; ok {
		ui.LastGet = now()
	}
	p.mu.Unlock()
	return true
}

// unborrow is the internal variant of Put matching borrow: moves r back
// from using to avail and releases the permit, bumping nreturns.
func (p *Pool[R]) unborrow(r R) {
	p.mu.Lock()
	if _, ok := p.using[r]; !ok {
		p.mu.Unlock()
		p.gate.release()
		return
	}
	delete(p.using, r)
	p.avail[r] = struct{}{}
	p.counters.nreturns++
	if ui, ok := p.uses[r]; ok {
		ui.LastRet = now()
	}
	p.mu.Unlock()
	p.gate.release()
}
