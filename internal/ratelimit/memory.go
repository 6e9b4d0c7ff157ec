package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Limiter = (*MemoryLimiter)(nil)

// bucket is a single token bucket for one key. tokens goes negative while
// waiters hold reservations.
type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// MemoryLimiter is a token bucket per key, held in process memory. All
// workers dialling the same endpoint draw from one bucket.
type MemoryLimiter struct {
	rate  float64 // tokens added per second
	burst float64 // maximum tokens (bucket capacity)

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter allows rate requests per second per key with bursts of
// up to burst. Buckets idle for staleThreshold are evicted by a background
// goroutine until Close.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Allow consumes one token from the bucket for key. Returns true if a token
// was available, false otherwise.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.refill(key, time.Now())
	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Wait reserves a token for key and sleeps until it becomes available.
// A cancelled wait gives its reservation back.
func (m *MemoryLimiter) Wait(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	b := m.refill(key, time.Now())
	b.tokens--
	delay := time.Duration(0)
	if b.tokens < 0 {
		delay = time.Duration(-b.tokens / m.rate * float64(time.Second))
	}
	m.mu.Unlock()

	if delay == 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		if b, ok := m.buckets[key]; ok {
			b.tokens = min(b.tokens+1, m.burst)
		}
		m.mu.Unlock()
		return ctx.Err()
	}
}

// refill returns the bucket for key topped up for the time elapsed since
// its last access. The caller holds m.mu.
func (m *MemoryLimiter) refill(key string, now time.Time) *bucket {
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, lastAccess: now}
		m.buckets[key] = b
		return b
	}
	b.tokens = min(b.tokens+now.Sub(b.lastAccess).Seconds()*m.rate, m.burst)
	b.lastAccess = now
	return b
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

const staleThreshold = 10 * time.Minute

// cleanup evicts idle buckets once a minute.
func (m *MemoryLimiter) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) && b.tokens >= 0 {
			delete(m.buckets, key)
		}
	}
}
