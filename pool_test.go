package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pool "github.com/zx80/proxy-pattern-pool"
)

type resource struct{ id int64 }

func counting() (func() (*resource, error), *int64) {
	var n int64
	return func() (*resource, error) {
		return &resource{id: atomic.AddInt64(&n, 1)}, nil
	}, &n
}

func TestGetCreatesFromScratchWhenPoolEmpty(t *testing.T) {
	t.Parallel()
	newR, created := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	r, err := p.Get(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.EqualValues(t, 1, atomic.LoadInt64(created))
}

func TestGetReusesReturnedResourceWithoutRecreating(t *testing.T) {
	t.Parallel()
	newR, created := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	r1, err := p.Get(context.Background(), 0)
	require.NoError(t, err)
	p.Put(r1)

	r2, err := p.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
	assert.EqualValues(t, 1, atomic.LoadInt64(created))
}

func TestGetBlocksUntilCapacityAvailableThenTimesOut(t *testing.T) {
	t.Parallel()
	newR, _ := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.MaxSize = 1

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	r1, err := p.Get(context.Background(), 0)
	require.NoError(t, err)

	_, err = p.Get(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, pool.ErrTimeout)

	p.Put(r1)
	r2, err := p.Get(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestPutRetiresResourceAfterMaxUse(t *testing.T) {
	t.Parallel()
	newR, created := counting()
	var destroyed int64
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.MaxUse = 2
	cfg.Closer = func(*resource) error {
		atomic.AddInt64(&destroyed, 1)
		return nil
	}

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	ctx := context.Background()
	r1, err := p.Get(ctx, 0)
	require.NoError(t, err)
	p.Put(r1)

	r2, err := p.Get(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, r1, r2, "second use should still be the same resource")
	p.Put(r2)

	r3, err := p.Get(ctx, 0)
	require.NoError(t, err)
	assert.NotSame(t, r1, r3, "third use exceeds max_use, resource must have been retired")
	assert.EqualValues(t, 2, atomic.LoadInt64(created))

	require.Eventually(t, func() bool { return atomic.LoadInt64(&destroyed) == 1 }, time.Second, time.Millisecond)
}

func TestPutIsIdempotentOnDoubleReturn(t *testing.T) {
	t.Parallel()
	newR, _ := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	r, err := p.Get(context.Background(), 0)
	require.NoError(t, err)
	p.Put(r)
	assert.NotPanics(t, func() { p.Put(r) })
}

func TestDoReturnsResourceOnError(t *testing.T) {
	t.Parallel()
	newR, _ := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.MaxSize = 1

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	boom := errors.New("boom")
	ctx := context.Background()
	err = p.Do(ctx, 0, func(*resource) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = p.Get(ctx, 20*time.Millisecond)
	require.NoError(t, err, "the resource must have been returned despite the error")
}

func TestIdleResourceIsEvictedAfterMaxAvailDelay(t *testing.T) {
	t.Parallel()
	newR, created := counting()
	var destroyed int64
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.MaxAvailDelay = 30 * time.Millisecond
	cfg.Delay = 10 * time.Millisecond
	cfg.Closer = func(*resource) error {
		atomic.AddInt64(&destroyed, 1)
		return nil
	}

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	ctx := context.Background()
	r, err := p.Get(ctx, 0)
	require.NoError(t, err)
	p.Put(r)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&destroyed) == 1
	}, time.Second, 5*time.Millisecond)

	r2, err := p.Get(ctx, 0)
	require.NoError(t, err)
	assert.NotSame(t, r, r2)
	assert.EqualValues(t, 2, atomic.LoadInt64(created))
}

func TestLongRunningResourceIsKilledAfterMaxUsingDelayKill(t *testing.T) {
	t.Parallel()
	newR, _ := counting()
	var destroyed int64
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.MaxSize = 1
	cfg.MaxUsingDelay = 10 * time.Millisecond
	cfg.MaxUsingDelayKill = 20 * time.Millisecond
	cfg.Delay = 5 * time.Millisecond
	cfg.Closer = func(*resource) error {
		atomic.AddInt64(&destroyed, 1)
		return nil
	}

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	ctx := context.Background()
	_, err = p.Get(ctx, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&destroyed) == 1
	}, time.Second, 5*time.Millisecond, "housekeeper must kill the long-running resource")

	// capacity must have been released by the kill, independent of the
	// caller ever returning the resource it still (mistakenly) holds.
	_, err = p.Get(ctx, 200*time.Millisecond)
	require.NoError(t, err)
}

func TestHealthHookRetiresUnhealthyResource(t *testing.T) {
	t.Parallel()
	newR, created := counting()
	var healthy atomic.Bool
	healthy.Store(true)
	var destroyed int64

	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.Delay = 5 * time.Millisecond
	cfg.HealthFreq = 1
	cfg.Health = func(*resource) (bool, error) { return healthy.Load(), nil }
	cfg.Closer = func(*resource) error {
		atomic.AddInt64(&destroyed, 1)
		return nil
	}

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	ctx := context.Background()
	r, err := p.Get(ctx, 0)
	require.NoError(t, err)
	p.Put(r)

	healthy.Store(false)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&destroyed) == 1
	}, time.Second, 5*time.Millisecond)

	r2, err := p.Get(ctx, 0)
	require.NoError(t, err)
	assert.NotSame(t, r, r2)
	assert.GreaterOrEqual(t, atomic.LoadInt64(created), int64(2))
}

func TestGetFailsAfterShutdown(t *testing.T) {
	t.Parallel()
	newR, _ := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })

	p, err := pool.New(cfg)
	require.NoError(t, err)
	p.Shutdown(time.Second)

	_, err = p.Get(context.Background(), 0)
	require.ErrorIs(t, err, pool.ErrPoolShutdown)
}

func TestConfigValidationRejectsMinSizeAboveMaxSize(t *testing.T) {
	t.Parallel()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return &resource{}, nil })
	cfg.MaxSize = 1
	cfg.MinSize = 2

	_, err := pool.New(cfg)
	require.ErrorIs(t, err, pool.ErrPoolConfig)
}

func TestSnapshotReportsMembershipCounts(t *testing.T) {
	t.Parallel()
	newR, _ := counting()
	cfg := pool.DefaultConfig(func(uint64) (*resource, error) { return newR() })
	cfg.MinSize = 0
	cfg.MaxSize = 3

	p, err := pool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(time.Second) })

	ctx := context.Background()
	r1, err := p.Get(ctx, 0)
	require.NoError(t, err)
	_, err = p.Get(ctx, 0)
	require.NoError(t, err)

	s := p.Snapshot()
	assert.Equal(t, 2, s.NUsing)
	assert.Equal(t, 0, s.NAvail)
	assert.EqualValues(t, 3, s.SemaphoreInitial)
	assert.EqualValues(t, 1, s.SemaphoreValue)

	p.Put(r1)
	s = p.Snapshot()
	assert.Equal(t, 1, s.NAvail)
	assert.Equal(t, 1, s.NUsing)
}
