package pool

import "errors"

// ErrTimeout is returned by Get when the acquire deadline expires before
// a resource becomes available.
var ErrTimeout = errors.New("pool: timeout while waiting for a resource")

// ErrPoolShutdown is returned by Get when called on a pool that has
// already been shut down.
var ErrPoolShutdown = errors.New("pool: pool is shut down")

// ErrPoolConfig is returned at construction time for inconsistent
// parameters, and by the proxy when a pool is reconfigured after its
// resource has already been materialized.
var ErrPoolConfig = errors.New("pool: invalid configuration")
