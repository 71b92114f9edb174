package ratelimit

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	capacity   int
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket that bursts to capacity and refills at
// refillRate tokens per second.
func NewTokenBucket(capacity int, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow takes one token if there is one.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Tokens returns the current number of available tokens
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.tokens
}

// Reset refills the bucket.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = float64(tb.capacity)
	tb.lastRefill = tb.now()
}

// DefaultMaxKeys bounds the number of buckets one RateLimiter tracks.
const DefaultMaxKeys = 10000

// RateLimiter keeps one bucket per key. Buckets idle for longer than the ttl
// are dropped, and the least recently used ones go first once maxKeys is hit.
type RateLimiter struct {
	buckets    *expirable.LRU[string, *TokenBucket]
	capacity   int
	refillRate float64
	mu         sync.Mutex

	// Now is the clock handed to new buckets.
	Now func() time.Time
}

// NewRateLimiter creates a new rate limiter. A zero ttl keeps idle buckets
// until they are evicted by size.
func NewRateLimiter(capacity int, refillRate float64, ttl time.Duration) *RateLimiter {
	return NewRateLimiterWithSize(capacity, refillRate, ttl, DefaultMaxKeys)
}

func NewRateLimiterWithSize(capacity int, refillRate float64, ttl time.Duration, maxKeys int) *RateLimiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &RateLimiter{
		buckets:    expirable.NewLRU[string, *TokenBucket](maxKeys, nil, ttl),
		capacity:   capacity,
		refillRate: refillRate,
		Now:        time.Now,
	}
}

// Allow checks if a request for the given key should be allowed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	bucket, exists := rl.buckets.Get(key)
	if !exists {
		bucket = newTokenBucket(rl.capacity, rl.refillRate, rl.Now)
	}
	// Re-adding refreshes the idle ttl.
	rl.buckets.Add(key, bucket)
	rl.mu.Unlock()

	return bucket.Allow()
}

// Reset resets the rate limiter for a specific key
func (rl *RateLimiter) Reset(key string) {
	if bucket, exists := rl.buckets.Peek(key); exists {
		bucket.Reset()
	}
}

// Remove removes a specific key from the rate limiter
func (rl *RateLimiter) Remove(key string) {
	rl.buckets.Remove(key)
}

// Stats returns statistics about the rate limiter
type Stats struct {
	ActiveBuckets int
	TotalCapacity int
	RefillRate    float64
}

// GetStats returns current statistics
func (rl *RateLimiter) GetStats() Stats {
	return Stats{
		ActiveBuckets: rl.buckets.Len(),
		TotalCapacity: rl.capacity,
		RefillRate:    rl.refillRate,
	}
}
