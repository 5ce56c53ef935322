package pool

import "time"

// now returns the current time used throughout the pool for UseInfo
// timestamps and housekeeping age comparisons. It is a thin wrapper so
// tests can reason about elapsed wall-clock time without a fake clock
// abstraction — the pool only ever needs relative durations, which
// time.Now() already gives monotonically within a process.
func now() time.Time {
	return time.Now()
}

// UseInfo is the per-resource usage record tracked for the lifetime of
// the resource. Uses increments on every Get; LastGet is set on
// Get/borrow; LastRet is set on Put/return.
type UseInfo struct {
	Uses    uint64
	LastGet time.Time
	LastRet time.Time
}
