package pool

import "time"

// houseKeep is the background housekeeping loop. It runs in its own
// goroutine, started by New when Config.wantsHousekeeper is true, and
// stops when hkStop is closed (by Shutdown).
func (p *Pool[R]) houseKeep() {
	defer close(p.hkDone)

	delay := p.cfg.housekeepDelay()
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-p.hkStop:
			return
		case <-ticker.C:
			p.houseKeepRound()
		}
	}
}

// houseKeepRound runs one full round: idle eviction and long-use
// warn/kill under the lock, then (every HealthFreq rounds) health
// checks, deferred destruction and refill outside the lock.
func (p *Pool[R]) houseKeepRound() {
	start := now()

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.mu.Lock()
				p.counters.hkErrors++
				p.mu.Unlock()
				Logger().Error().Interface("panic", rec).Msg("pool: housekeeping round failed")
			}
		}()
		p.hkRound()
	}()

	p.mu.Lock()
	p.counters.hkRounds++
	rounds := p.counters.hkRounds
	p.mu.Unlock()

	if p.cfg.Health != nil && int(rounds)%p.cfg.HealthFreq == 0 {
		p.healthCheckRound()
	}

	p.runDeferredDestruction()
	p.refill()

	p.mu.Lock()
	p.counters.hkTime += now().Sub(start)
	p.counters.hkLast = now()
	p.mu.Unlock()
}

// hkRound performs the O(|avail|+|using|) bookkeeping step of a
// housekeeping round: long-use warn/kill over using, then idle eviction
// over avail. It acquires the lock itself and holds it for its entire
// body.
func (p *Pool[R]) hkRound() {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := now()

	if p.cfg.MaxUsingDelay > 0 {
		var longRun int
		var totalAge time.Duration
		var killed []R
		for r := range p.using {
			ui, ok := p.uses[r]
			if !ok {
				continue
			}
			age := t.Sub(ui.LastGet)
			if age < p.cfg.MaxUsingDelay {
				continue
			}
			longRun++
			totalAge += age
			if p.cfg.MaxUsingDelayKill > 0 && age >= p.cfg.MaxUsingDelayKill {
				killed = append(killed, r)
			}
		}
		if longRun > 0 {
			Logger().Warn().
				Int("long_running", longRun).
				Dur("avg_age", totalAge/time.Duration(longRun)).
				Msg("pool: long-running resources")
		}
		for _, r := range killed {
			p.outLocked(r)
			p.counters.nkilled++
			// Safe to release while holding the lock: semaphore release
			// is non-blocking. The caller still holding r will eventually
			// Put it, landing on the unexpected-return path.
			p.gate.release()
		}
	}

	if p.cfg.MaxAvailDelay > 0 && int64(p.nobjs) > p.cfg.MinSize {
		for r := range p.avail {
			if int64(p.nobjs) <= p.cfg.MinSize {
				break
			}
			ui, ok := p.uses[r]
			if !ok {
				continue
			}
			if t.Sub(ui.LastRet) >= p.cfg.MaxAvailDelay {
				p.outLocked(r)
				p.counters.nrecycled++
			}
		}
	}
}

// healthCheckRound runs the health hook over a snapshot of avail,
// entirely outside the lock except for the brief borrow/return/retire
// bookkeeping.
func (p *Pool[R]) healthCheckRound() {
	p.mu.Lock()
	p.counters.hcRounds++
	snapshot := make([]R, 0, len(p.avail))
	for r := range p.avail {
		snapshot = append(snapshot, r)
	}
	p.mu.Unlock()

	for _, r := range snapshot {
		if !p.borrow(r) {
			continue // no longer available, skip
		}

		p.mu.Lock()
		p.counters.nhealth++
		p.mu.Unlock()

		healthy, err := p.cfg.Health(r)
		if err != nil {
			p.mu.Lock()
			p.counters.hcErrors++
			p.mu.Unlock()
			Logger().Error().Err(err).Msg("pool: health hook error")
			healthy = true
		}

		if healthy {
			p.unborrow(r)
			continue
		}

		p.mu.Lock()
		p.outLocked(r)
		p.counters.badHealth++
		p.mu.Unlock()
		p.gate.release()
		Logger().Error().Str("resource", p.describe(r)).Msg("pool: resource failed health check")
	}
}
