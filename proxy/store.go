package proxy

import (
	"context"
	"sync"
)

// Store holds the zero-or-one wrapped object(s) a Proxy forwards to.
// Scope picks the implementation: sharedStore for one object shared by
// every caller, contextStore for one object per context.Context.
//
// The original proxy located the per-scope object via thread-local (or
// greenlet-local) storage, keyed by implicit goroutine/thread identity.
// Go goroutines have no such identity, and reaching for one (e.g. via
// runtime stack-trace parsing) is not how anything in this codebase
// solves request-scoping — context.Context already is the idiomatic
// carrier for per-request state, so THREAD and VERSATILE scope both
// resolve to a context-keyed Store here; only SHARED is a distinct
// implementation.
type Store[R any] interface {
	// Get returns the object previously Set for this scope, if any.
	Get(ctx context.Context) (R, bool)
	// Set records obj as the current object for this scope.
	Set(ctx context.Context, obj R)
	// Clear forgets the current object for this scope, if any.
	Clear(ctx context.Context)
	// Empty reports whether no object is currently materialized anywhere
	// in this store, across every scope instance it tracks.
	Empty() bool
}

// sharedStore is a single-slot Store guarded by a mutex, for Scope
// SHARED: exactly one object, assumed safe for concurrent use by every
// caller.
type sharedStore[R any] struct {
	mu     sync.Mutex
	obj    R
	hasObj bool
}

func newSharedStore[R any]() *sharedStore[R] {
	return &sharedStore[R]{}
}

func (s *sharedStore[R]) Get(context.Context) (R, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obj, s.hasObj
}

func (s *sharedStore[R]) Set(_ context.Context, obj R) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obj = obj
	s.hasObj = true
}

func (s *sharedStore[R]) Clear(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero R
	s.obj = zero
	s.hasObj = false
}

func (s *sharedStore[R]) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.hasObj
}

// contextStore keys one object per context.Context identity, for
// Scope THREAD and VERSATILE. Entries are never actively evicted: the
// expectation, mirrored from the pooled case, is that a caller holding
// a context-scoped object returns it (Proxy.Return) before the context
// is discarded. The map holds both the context.Context key and the
// object strongly, so an entry that is never cleared keeps both
// reachable for as long as the store itself lives.
type contextStore[R any] struct {
	mu    sync.Mutex
	byCtx map[context.Context]R
}

func newContextStore[R any]() *contextStore[R] {
	return &contextStore[R]{byCtx: make(map[context.Context]R)}
}

func (s *contextStore[R]) Get(ctx context.Context) (R, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.byCtx[ctx]
	return obj, ok
}

func (s *contextStore[R]) Set(ctx context.Context, obj R) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCtx[ctx] = obj
}

func (s *contextStore[R]) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byCtx, ctx)
}

func (s *contextStore[R]) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCtx) == 0
}
