package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	capacity   int64     // Maximum number of tokens
	tokens     int64     // Current number of tokens
	refillRate int64     // Tokens added per second
	lastRefill time.Time // Last refill timestamp
	lastUsed   time.Time
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity, refillRate int64, clock clockwork.Clock) *TokenBucket {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	now := clock.Now()
	return &TokenBucket{
		clock:      clock,
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now,
		lastUsed:   now,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if n requests are allowed and consumes n tokens if so
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	tb.refill(now)
	tb.lastUsed = now

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}

	return false
}

// refill adds whole tokens for elapsed time, keeping the fractional remainder
func (tb *TokenBucket) refill(now time.Time) {
	if tb.refillRate <= 0 {
		return
	}
	if tb.tokens >= tb.capacity {
		tb.lastRefill = now
		return
	}

	interval := time.Second / time.Duration(tb.refillRate)
	tokensToAdd := int64(now.Sub(tb.lastRefill) / interval)
	if tokensToAdd <= 0 {
		return
	}

	tb.tokens += tokensToAdd
	if tb.tokens >= tb.capacity {
		tb.tokens = tb.capacity
		tb.lastRefill = now
		return
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(tokensToAdd) * interval)
}

// idleSince reports whether the bucket is full and unused since cutoff
func (tb *TokenBucket) idleSince(cutoff time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(tb.clock.Now())
	return tb.tokens == tb.capacity && tb.lastUsed.Before(cutoff)
}

// RateLimiter manages rate limits for multiple keys (e.g., player IDs, IP addresses)
type RateLimiter struct {
	mu              sync.RWMutex
	clock           clockwork.Clock
	buckets         map[string]*TokenBucket
	capacity        int64
	refillRate      int64
	cleanupInterval time.Duration
	lastCleanup     time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its idle-bucket cleanup loop
func NewRateLimiter(capacity, refillRate int64, clock clockwork.Clock) *RateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rl := &RateLimiter{
		clock:           clock,
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		refillRate:      refillRate,
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     clock.Now(),
		stop:            make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow checks if a request from the given key is allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.AllowN(key, 1)
}

// AllowN checks if n requests from the given key are allowed
func (rl *RateLimiter) AllowN(key string, n int64) bool {
	return rl.getBucket(key).AllowN(n)
}

// Capacity bucket size per key
func (rl *RateLimiter) Capacity() int64 {
	return rl.capacity
}

// RefillRate tokens per second per key
func (rl *RateLimiter) RefillRate() int64 {
	return rl.refillRate
}

// getBucket gets or creates a token bucket for the given key
func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	bucket, exists = rl.buckets[key]
	if exists {
		return bucket
	}

	bucket = NewTokenBucket(rl.capacity, rl.refillRate, rl.clock)
	rl.buckets[key] = bucket
	return bucket
}

// cleanupLoop periodically removes inactive buckets
func (rl *RateLimiter) cleanupLoop() {
	ticker := rl.clock.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes buckets that are full and haven't been used for a cleanup interval
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	cutoff := now.Add(-rl.cleanupInterval)
	for key, bucket := range rl.buckets {
		if bucket.idleSince(cutoff) {
			delete(rl.buckets, key)
		}
	}

	rl.lastCleanup = now
}

// Reset resets the rate limit for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Close stops the cleanup loop
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// GetStats returns statistics about the rate limiter
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"active_buckets": len(rl.buckets),
		"capacity":       rl.capacity,
		"refill_rate":    rl.refillRate,
		"last_cleanup":   rl.lastCleanup,
	}
}
