package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(5, 1.0, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, tb.Allow(), "request %d should be allowed", i+1)
	}
	assert.False(t, tb.Allow(), "6th request should be denied")

	clock.Advance(2 * time.Second)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "only two tokens refilled")
}

func TestTokenBucket_RefillIsCapped(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(3, 1.0, clock.Now)
	tb.Allow()

	clock.Advance(time.Hour)
	tb.Allow()
	assert.Equal(t, 2.0, tb.Tokens())
}

func TestTokenBucket_Reset(t *testing.T) {
	tb := NewTokenBucket(3, 1.0)
	for i := 0; i < 3; i++ {
		tb.Allow()
	}
	assert.False(t, tb.Allow(), "bucket should be empty")

	tb.Reset()
	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "request %d should be allowed after reset", i+1)
	}
}

func TestTokenBucket_Tokens(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(10, 1.0, clock.Now)
	assert.Equal(t, 10.0, tb.Tokens())

	tb.Allow()
	assert.Equal(t, 9.0, tb.Tokens())
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(2, 1.0, 0)
	rl.Now = clock.Now

	assert.True(t, rl.Allow("key1"))
	assert.True(t, rl.Allow("key1"))
	assert.False(t, rl.Allow("key1"))

	// separate bucket
	assert.True(t, rl.Allow("key2"))
	assert.True(t, rl.Allow("key2"))

	clock.Advance(1100 * time.Millisecond)
	assert.True(t, rl.Allow("key1"))
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(1, 1.0, 0)
	rl.Allow("key1")
	assert.False(t, rl.Allow("key1"))

	rl.Reset("key1")
	assert.True(t, rl.Allow("key1"))
}

func TestRateLimiter_Remove(t *testing.T) {
	rl := NewRateLimiter(5, 1.0, 0)
	rl.Allow("key1")
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)

	rl.Remove("key1")
	assert.Equal(t, 0, rl.GetStats().ActiveBuckets)
}

func TestRateLimiter_Stats(t *testing.T) {
	rl := NewRateLimiter(10, 5.0, 0)
	rl.Allow("key1")
	rl.Allow("key2")
	rl.Allow("key3")

	assert.Equal(t, Stats{ActiveBuckets: 3, TotalCapacity: 10, RefillRate: 5.0}, rl.GetStats())
}

func TestRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	rl := NewRateLimiterWithSize(1, 0, 0, 2)
	rl.Allow("a")
	rl.Allow("b")
	rl.Allow("c")

	assert.Equal(t, 2, rl.GetStats().ActiveBuckets)
	assert.True(t, rl.Allow("a"), "evicted key starts with a fresh bucket")
	assert.False(t, rl.Allow("c"))
}

func TestRateLimiter_IdleBucketsExpire(t *testing.T) {
	rl := NewRateLimiter(5, 1.0, 50*time.Millisecond)
	rl.Allow("key1")
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)

	assert.Eventually(t, func() bool {
		return rl.GetStats().ActiveBuckets == 0
	}, time.Second, 20*time.Millisecond)
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, 0, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if rl.Allow("concurrent-test") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
	assert.Equal(t, 1, rl.GetStats().ActiveBuckets)
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	rl := NewRateLimiter(1000000, 1000000.0, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rl.Allow("benchmark-key")
	}
}
