// Package pool implements a generic, thread-safe resource pool: it lends
// caller-owned resources on demand, manages their lifecycle across
// creation, reuse, recycling, health-checking and destruction, and
// enforces an upper bound on live resources with blocking acquisition.
//
// A Pool is built around a capacity gate (golang.org/x/sync/semaphore),
// a single mutex guarding three disjoint resource sets (available,
// in-use, pending-destroy), and a background housekeeper goroutine that
// performs idle eviction, long-use warning/killing, health checks and
// deferred destruction without ever holding the mutex across a
// user-supplied hook call.
//
// The mutex is not re-entrant: internal helpers that must run under the
// lock take a "Locked" name suffix and assume the caller already holds
// it, instead of acquiring it themselves. Every public or housekeeper
// entry point acquires the lock in exactly one stack frame.
package pool

import (
	"fmt"
	"sync"
	"time"
)

// Factory creates a resource given a strictly increasing creation
// index, starting at 0 for the first call made over the pool's
// lifetime. It may block; it is always called outside the pool's lock.
type Factory[R any] func(creationIndex uint64) (R, error)

// Hook is a lifecycle callback (opener, getter, retter, closer). Hook
// errors are logged and never propagated: a failing Closer still causes
// the resource to be forgotten, a failing Opener/Getter/Retter still
// lets the resource be lent or returned.
type Hook[R any] func(R) error

// HealthHook probes a resource's health. A false return (with nil
// error) is an expected signal to retire the resource. A non-nil error
// is logged and counted as a health-check error, but does not by itself
// retire the resource.
type HealthHook[R any] func(R) (healthy bool, err error)

// StatsHook renders a resource as a JSON-marshalable value for the
// per-resource detail lists in Stats.
type StatsHook[R any] func(R) (any, error)

// TracerHook renders a resource as a short diagnostic string, used by
// Stats and by the "unexpected return" warning.
type TracerHook[R any] func(R) (string, error)

// Config holds every Pool construction parameter, with the documented
// defaults applied by DefaultConfig.
type Config[R comparable] struct {
	// Fun is the required resource factory.
	Fun Factory[R]

	// MaxSize bounds the number of live resources; 0 means unbounded.
	MaxSize int64
	// MinSize is the target minimum number of registered resources
	// maintained by refill.
	MinSize int64
	// Timeout is the default acquire timeout; 0 means wait forever.
	Timeout time.Duration
	// MaxUse retires a resource after this many lends; 0 means unlimited.
	MaxUse uint64
	// MaxAvailDelay is the idle-eviction threshold; 0 means never.
	MaxAvailDelay time.Duration
	// MaxUsingDelay is the long-use warn threshold; 0 means never.
	MaxUsingDelay time.Duration
	// MaxUsingDelayKill is the long-use kill threshold; 0 means never.
	MaxUsingDelayKill time.Duration
	// HealthFreq is the number of housekeeping rounds between health
	// sweeps.
	HealthFreq int
	// Delay forces a housekeeping period; 0 means auto-derive.
	Delay time.Duration

	Opener Hook[R]
	Getter Hook[R]
	Retter Hook[R]
	Closer Hook[R]

	Health HealthHook[R]
	Stats  StatsHook[R]
	Tracer TracerHook[R]

	// StartHousekeeper explicitly controls whether the housekeeper
	// goroutine is launched (and, with it, whether New performs an
	// initial refill to MinSize). This is the explicit,
	// non-environment-driven knob a process that is about to be replaced
	// by a reloader's forked worker can use to avoid leaving a zombie
	// goroutine behind: callers who need that read the environment
	// themselves (see internal/poolconfig) and set this field to false.
	// nil means "decide automatically": launch when Delay > 0, MaxAvailDelay
	// > 0, MaxUsingDelay > 0, or Health is configured.
	StartHousekeeper *bool
}

// DefaultConfig returns a Config with every field set to its documented
// default, and Fun set to fun.
func DefaultConfig[R comparable](fun Factory[R]) Config[R] {
	return Config[R]{
		Fun:        fun,
		MaxSize:    0,
		MinSize:    1,
		Timeout:    0,
		MaxUse:     0,
		HealthFreq: 1,
		Delay:      0,
	}
}

func (c Config[R]) validate() error {
	if c.Fun == nil {
		return fmt.Errorf("%w: Fun factory is required", ErrPoolConfig)
	}
	if c.MaxSize < 0 {
		return fmt.Errorf("%w: MaxSize must not be negative", ErrPoolConfig)
	}
	if c.MinSize < 0 {
		return fmt.Errorf("%w: MinSize must not be negative", ErrPoolConfig)
	}
	if c.MaxSize > 0 && c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: MinSize must not exceed MaxSize", ErrPoolConfig)
	}
	if c.HealthFreq < 1 {
		return fmt.Errorf("%w: HealthFreq must be at least 1", ErrPoolConfig)
	}
	if c.MaxUsingDelayKill > 0 && c.MaxUsingDelay <= 0 {
		return fmt.Errorf("%w: MaxUsingDelayKill requires MaxUsingDelay", ErrPoolConfig)
	}
	return nil
}

func (c Config[R]) wantsHousekeeper() bool {
	if c.StartHousekeeper != nil {
		return *c.StartHousekeeper
	}
	return c.Delay > 0 || c.MaxAvailDelay > 0 || c.MaxUsingDelay > 0 || c.Health != nil
}

// housekeepDelay derives the housekeeping period: the user-specified
// Delay if set, else min(MaxAvailDelay, MaxUsingDelay)/2 when either is
// set, else 60s when only health checks are configured.
func (c Config[R]) housekeepDelay() time.Duration {
	if c.Delay > 0 {
		return c.Delay
	}
	min := time.Duration(0)
	for _, d := range []time.Duration{c.MaxAvailDelay, c.MaxUsingDelay} {
		if d <= 0 {
			continue
		}
		if min == 0 || d < min {
			min = d
		}
	}
	if min > 0 {
		return min / 2
	}
	return 60 * time.Second
}

// counters holds the pool's monotonic lifetime statistics, mutated only
// under Pool.mu.
type counters struct {
	ncreating uint64
	ncreated  uint64
	nuses     uint64
	nhealth   uint64
	badHealth uint64
	nborrows  uint64
	nreturns  uint64
	nkilled   uint64
	nrecycled uint64
	nwornout  uint64
	ndestroys uint64
	hkRounds  uint64
	hkErrors  uint64
	hcRounds  uint64
	hcErrors  uint64
	hkTime    time.Duration
	hkLast    time.Time
}

// Pool is a generic, thread-safe pool of resources of type R. R must be
// comparable: the registry indexes resources by reference identity, and
// Go maps require comparable keys — a pointer type or any naturally
// comparable handle satisfies this; wrap non-comparable resources in an
// identity-preserving handle (e.g. a small struct holding a pointer).
//
// The zero value is not usable; construct with New.
type Pool[R comparable] struct {
	cfg  Config[R]
	gate *gate

	mu       sync.Mutex
	avail    map[R]struct{}
	using    map[R]struct{}
	todel    map[R]struct{}
	uses     map[R]*UseInfo
	nobjs    int
	nextIdx  uint64
	shutdown bool
	counters counters

	hkStop chan struct{}
	hkDone chan struct{}
}

// New constructs a Pool. Unless disabled (see Config.StartHousekeeper), it
// starts the housekeeper goroutine and performs an initial refill pass to
// MinSize; both are skipped together, since a process that doesn't want a
// background goroutine (the werkzeug-reloader case internal/poolconfig
// handles) also doesn't want resources pre-created that nothing will ever
// reap.
func New[R comparable](cfg Config[R]) (*Pool[R], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pool[R]{
		cfg:   cfg,
		gate:  newGate(cfg.MaxSize),
		avail: make(map[R]struct{}),
		using: make(map[R]struct{}),
		todel: make(map[R]struct{}),
		uses:  make(map[R]*UseInfo),
	}
	if cfg.wantsHousekeeper() {
		p.hkStop = make(chan struct{})
		p.hkDone = make(chan struct{})
		go p.houseKeep()
		p.refill()
	}
	return p, nil
}

// Shutdown marks the pool shut down, disables refill, stops the
// housekeeper (best-effort, bounded by waitDelay), and destroys every
// resource still registered (in-use resources are destroyed with a
// warning since the pool cannot revoke a caller's reference to them).
// Subsequent Get calls fail with ErrPoolShutdown.
func (p *Pool[R]) Shutdown(waitDelay time.Duration) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.cfg.MinSize = 0
	p.mu.Unlock()

	if p.hkStop != nil {
		close(p.hkStop)
		select {
		case <-p.hkDone:
		case <-time.After(waitDelay):
			Logger().Warn().Msg("pool: housekeeper did not stop within wait delay")
		}
	}

	p.mu.Lock()
	inUse := make([]R, 0, len(p.using))
	for r := range p.using {
		inUse = append(inUse, r)
	}
	remaining := make([]R, 0, len(p.avail))
	for r := range p.avail {
		remaining = append(remaining, r)
	}
	for _, r := range inUse {
		p.outLocked(r)
	}
	for _, r := range remaining {
		p.outLocked(r)
	}
	p.avail = make(map[R]struct{})
	p.using = make(map[R]struct{})
	p.mu.Unlock()

	if len(inUse) > 0 {
		Logger().Warn().Int("count", len(inUse)).Msg("pool: shutdown destroying resources still in use")
	}
	for _, r := range inUse {
		p.destroy(r)
	}
	for _, r := range remaining {
		p.destroy(r)
	}
}
