package pool

// This file holds the registry invariant helpers that keep avail, using,
// todel and uses consistent. Every method here assumes Pool.mu is
// already held by the caller — none of them lock it themselves, so the
// call graph keeps the lock held in exactly one stack frame per public
// operation; the mutex is not re-entrant, so nesting a second lock
// attempt inside an already-locked call would deadlock.

// outLocked removes r from whichever of avail/using it inhabits, drops
// its uses entry, adds it to todel, and decrements nobjs. Idempotent on
// an already-removed resource.
func (p *Pool[R]) outLocked(r R) {
	if _, ok := p.uses[r]; !ok {
		return
	}
	delete(p.avail, r)
	delete(p.using, r)
	delete(p.uses, r)
	p.todel[r] = struct{}{}
	p.nobjs--
}

// registerLocked records a freshly created resource's uses entry and
// bumps nobjs. It does not place the resource in avail or using —
// callers decide that once the opener hook (run unlocked) has run.
func (p *Pool[R]) registerLocked(r R) {
	t := now()
	p.uses[r] = &UseInfo{LastGet: t, LastRet: t}
	p.nobjs++
}

// drainTodelLocked atomically moves todel into a fresh slice and resets
// the set, for the deferred-destruction pass.
func (p *Pool[R]) drainTodelLocked() []R {
	if len(p.todel) == 0 {
		return nil
	}
	drained := make([]R, 0, len(p.todel))
	for r := range p.todel {
		drained = append(drained, r)
	}
	p.todel = make(map[R]struct{})
	return drained
}
