// Package proxy implements the proxy pattern half of this module: a
// handle that can be imported and passed around before the object it
// wraps exists, and that resolves to that object — a single shared
// instance, or one instance per scope — on first use.
package proxy

import (
	"context"
	"fmt"
	"sync"

	pool "github.com/zx80/proxy-pattern-pool"
)

// Scope controls how many wrapped objects exist at once and how they
// are located.
type Scope int

const (
	// ScopeAuto picks SHARED when constructed with an object, THREAD
	// when constructed with a factory function.
	ScopeAuto Scope = iota
	// ScopeShared is a single object shared by every caller, which must
	// itself be safe for concurrent use.
	ScopeShared
	// ScopeThread is one object per context.Context, generated on first
	// use by the configured factory.
	ScopeThread
	// ScopeVersatile is ScopeThread under another name, kept distinct so
	// callers porting code that distinguishes thread- from
	// sub-thread-level scoping (e.g. a greenlet pool) can express that
	// intent; this module resolves both the same way.
	ScopeVersatile
)

func (s Scope) String() string {
	switch s {
	case ScopeShared:
		return "shared"
	case ScopeThread:
		return "thread"
	case ScopeVersatile:
		return "versatile"
	default:
		return "auto"
	}
}

// ErrBothSet is returned by New when both an object and a factory are
// supplied — a Proxy wraps exactly one source of truth. It wraps
// pool.ErrPoolConfig.
var ErrBothSet = fmt.Errorf("%w: proxy: cannot set both obj and fun", pool.ErrPoolConfig)

// ErrNeitherSet is returned by New when neither an object nor a factory
// is supplied. It wraps pool.ErrPoolConfig.
var ErrNeitherSet = fmt.Errorf("%w: proxy: must set either obj or fun", pool.ErrPoolConfig)

// Option configures a Proxy during construction via New.
type Option[R comparable] func(*config[R])

type config[R comparable] struct {
	obj     R
	hasObj  bool
	fun     pool.Factory[R]
	hasFun  bool
	scope   Scope
	poolCfg *pool.Config[R]
}

// WithObj sets the proxy's single shared object directly, resolving
// scope to ScopeShared unless overridden by WithScope. Mutually
// exclusive with WithFun.
func WithObj[R comparable](obj R) Option[R] {
	return func(c *config[R]) {
		c.obj = obj
		c.hasObj = true
	}
}

// WithFun sets the factory that generates a new object per scope
// instance, resolving scope to ScopeThread unless overridden by
// WithScope. Mutually exclusive with WithObj.
func WithFun[R comparable](fun pool.Factory[R]) Option[R] {
	return func(c *config[R]) {
		c.fun = fun
		c.hasFun = true
	}
}

// WithScope overrides the scope that would otherwise be inferred from
// WithObj/WithFun.
func WithScope[R comparable](scope Scope) Option[R] {
	return func(c *config[R]) {
		c.scope = scope
	}
}

// WithPool backs the factory with a Pool built from cfg instead of
// creating one object per scope instance unconditionally: Get draws
// from the pool, Return gives the object back. Only meaningful with
// WithFun; cfg.Fun is overwritten with the proxy's factory.
func WithPool[R comparable](cfg pool.Config[R]) Option[R] {
	return func(c *config[R]) {
		c.poolCfg = &cfg
	}
}

// Proxy forwards Get/Do calls to a wrapped object that may not exist
// yet: constructed with an object directly, or with a factory that
// materializes one lazily per Scope, optionally backed by a Pool. A
// Proxy can also be built empty (see Set) as a forward reference to an
// object that will be bound once it becomes available.
type Proxy[R comparable] struct {
	mu    sync.RWMutex
	scope Scope
	fun   pool.Factory[R]
	pl    *pool.Pool[R]
	store Store[R]
}

// New builds a Proxy from the given options. Exactly one of WithObj or
// WithFun must be supplied.
func New[R comparable](opts ...Option[R]) (*Proxy[R], error) {
	p := &Proxy[R]{scope: ScopeAuto, store: newSharedStore[R]()}
	if err := p.Set(opts...); err != nil {
		return nil, err
	}
	return p, nil
}

// Set (re)binds the proxy to an object or factory, mirroring the
// original's _set dispatcher: a Proxy can be built empty — an
// importable forward reference to something that doesn't exist yet,
// such as a pool-backed client a request handler will use once the
// application finishes wiring its dependencies — and bound to the real
// object or factory later with Set. Exactly one of WithObj or WithFun
// must be supplied, under the same rules as New.
//
// Set refuses to rebind a scope that already has a materialized object:
// doing so while some caller holds the old one would silently orphan it
// outside the pool's bookkeeping. It also refuses WithPool against a
// proxy that already has a backing pool, since the original pool's
// in-flight resources would become unreachable. Both cases return an
// error wrapping pool.ErrPoolConfig.
func (p *Proxy[R]) Set(opts ...Option[R]) error {
	var c config[R]
	c.scope = ScopeAuto
	for _, opt := range opts {
		opt(&c)
	}

	if c.hasObj && c.hasFun {
		return ErrBothSet
	}
	if !c.hasObj && !c.hasFun {
		return ErrNeitherSet
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store != nil && !p.store.Empty() {
		return fmt.Errorf("%w: proxy already has a materialized object", pool.ErrPoolConfig)
	}
	if p.pl != nil && c.poolCfg != nil {
		return fmt.Errorf("%w: cannot reconfigure a proxy's pool once materialized", pool.ErrPoolConfig)
	}

	scope := c.scope
	if scope == ScopeAuto {
		if c.hasObj {
			scope = ScopeShared
		} else {
			scope = ScopeThread
		}
	}

	if c.hasObj {
		p.scope = scope
		p.fun = nil
		p.pl = nil
		p.store = newSharedStore[R]()
		p.store.Set(context.Background(), c.obj)
		return nil
	}

	p.fun = c.fun
	if c.poolCfg != nil {
		pc := *c.poolCfg
		pc.Fun = c.fun
		pl, err := pool.New(pc)
		if err != nil {
			return fmt.Errorf("proxy: building backing pool: %w", err)
		}
		p.pl = pl
	}
	switch scope {
	case ScopeShared:
		p.store = newSharedStore[R]()
	case ScopeThread, ScopeVersatile:
		p.store = newContextStore[R]()
	default:
		return fmt.Errorf("proxy: unhandled scope %v", scope)
	}
	p.scope = scope
	return nil
}

// SetObj rebinds the proxy to a single shared object, mirroring the
// original's _set_obj. See Set for the materialization guard.
func (p *Proxy[R]) SetObj(obj R) error {
	return p.Set(WithObj[R](obj))
}

// SetFun rebinds the proxy to a factory that generates one object per
// scope instance, mirroring the original's _set_fun. Pass WithPool
// alongside to back it with a Pool, and WithScope to override the
// inferred scope. See Set for the materialization guard.
func (p *Proxy[R]) SetFun(fun pool.Factory[R], opts ...Option[R]) error {
	return p.Set(append([]Option[R]{WithFun[R](fun)}, opts...)...)
}

// Get returns the current object for ctx's scope, materializing one
// (via the pool if configured, else the factory directly) on first
// use. The creation index passed to a non-pooled factory is always 0:
// without a pool there is nothing to count creations against.
func (p *Proxy[R]) Get(ctx context.Context) (R, error) {
	p.mu.RLock()
	store, pl, fun := p.store, p.pl, p.fun
	p.mu.RUnlock()

	if obj, ok := store.Get(ctx); ok {
		return obj, nil
	}

	var obj R
	var err error
	if pl != nil {
		obj, err = pl.Get(ctx, 0)
	} else {
		obj, err = fun(0)
	}
	if err != nil {
		var zero R
		return zero, err
	}
	store.Set(ctx, obj)
	return obj, nil
}

// MustGet is Get without an error return, for callers that have
// established the factory cannot fail (e.g. a ScopeShared object set
// via WithObj, which never errors).
func (p *Proxy[R]) MustGet(ctx context.Context) R {
	obj, err := p.Get(ctx)
	if err != nil {
		panic(err)
	}
	return obj
}

// Return gives ctx's current object back to the backing pool, if any,
// and forgets it for this scope. A no-op when no pool is configured,
// or when ctx never called Get — mirroring the tolerant double-return
// semantics of Pool.Put.
func (p *Proxy[R]) Return(ctx context.Context) {
	p.mu.RLock()
	store, pl := p.store, p.pl
	p.mu.RUnlock()

	if pl == nil {
		return
	}
	obj, ok := store.Get(ctx)
	if !ok {
		return
	}
	store.Clear(ctx)
	pl.Put(obj)
}

// Do runs fn with the object resolved for ctx, returning it afterward
// when a pool backs this proxy — the scoped acquire/release pattern,
// mirrored from Pool.Do.
func (p *Proxy[R]) Do(ctx context.Context, fn func(R) error) error {
	obj, err := p.Get(ctx)
	if err != nil {
		return err
	}
	p.mu.RLock()
	pooled := p.pl != nil
	p.mu.RUnlock()
	if pooled {
		defer p.Return(ctx)
	}
	return fn(obj)
}

// Scope reports the scope this Proxy currently resolves to.
func (p *Proxy[R]) Scope() Scope {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scope
}
