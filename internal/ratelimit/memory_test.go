package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const node = "wss://rpc.polkadot.io"

func newTestLimiter(t *testing.T, rate float64, burst int) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(rate, burst)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	return m
}

// drain calls Allow n times and returns how many were admitted.
func drain(t *testing.T, m *MemoryLimiter, key string, n int) int {
	t.Helper()
	admitted := 0
	for range n {
		ok, err := m.Allow(context.Background(), key)
		require.NoError(t, err)
		if ok {
			admitted++
		}
	}
	return admitted
}

func TestAllowAdmitsBurstThenDenies(t *testing.T) {
	m := newTestLimiter(t, 10, 3)
	assert.Equal(t, 3, drain(t, m, node, 5))
}

func TestAllowRefillsOverTime(t *testing.T) {
	m := newTestLimiter(t, 1000, 2)
	require.Equal(t, 2, drain(t, m, node, 3))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, drain(t, m, node, 1))
}

func TestEndpointsHaveSeparateBudgets(t *testing.T) {
	m := newTestLimiter(t, 10, 1)
	assert.Equal(t, 1, drain(t, m, node, 2))
	assert.Equal(t, 1, drain(t, m, "wss://backup.example", 2))
	assert.NoError(t, m.Wait(context.Background(), "wss://third.example"))
}

func TestSharedEndpointAcrossWorkers(t *testing.T) {
	m := newTestLimiter(t, 100, 50)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 10 {
				ok, err := m.Allow(context.Background(), node)
				assert.NoError(t, err)
				if ok {
					admitted.Add(1)
				}
			}
		})
	}
	wg.Wait()
	// The burst, plus whatever refilled while the workers ran.
	assert.GreaterOrEqual(t, admitted.Load(), int64(50))
	assert.LessOrEqual(t, admitted.Load(), int64(60))
}

func TestIdleBucketCapsAtBurst(t *testing.T) {
	m := newTestLimiter(t, 1000, 3)
	drain(t, m, node, 1)

	m.mu.Lock()
	m.buckets[node].lastAccess = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	assert.Equal(t, 3, drain(t, m, node, 4))
}

func TestEvictStale(t *testing.T) {
	m := newTestLimiter(t, 10, 5)
	drain(t, m, "stale", 1)
	drain(t, m, "recent", 1)

	m.mu.Lock()
	m.buckets["stale"].lastAccess = time.Now().Add(-2 * staleThreshold)
	m.mu.Unlock()
	m.evictStale()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.buckets, "stale")
	assert.Contains(t, m.buckets, "recent")
}

func TestWaitPacesRequests(t *testing.T) {
	// 200/s with burst 1: the third call waits two intervals.
	m := newTestLimiter(t, 200, 1)
	start := time.Now()
	for range 3 {
		require.NoError(t, m.Wait(context.Background(), node))
	}
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)
}

func TestWaitCancelledReturnsReservation(t *testing.T) {
	m := newTestLimiter(t, 0.001, 1)
	require.NoError(t, m.Wait(context.Background(), node))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Wait(ctx, node), context.DeadlineExceeded)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.GreaterOrEqual(t, m.buckets[node].tokens, -0.01)
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNew(t *testing.T) {
	assert.IsType(t, NoopLimiter{}, New(0, 10))

	l := New(5, 0)
	t.Cleanup(func() { _ = l.Close() })
	require.IsType(t, &MemoryLimiter{}, l)
	assert.InDelta(t, 1, l.(*MemoryLimiter).burst, 0)

	var noop NoopLimiter
	ok, err := noop.Allow(context.Background(), node)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, noop.Close())
}
