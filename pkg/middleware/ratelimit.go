// Package middleware provides per-session request throttling for the gateway.
//
// Each key (a session id) gets its own token bucket, so one noisy browser tab cannot
// starve the upstream budget shared by everyone else. Buckets are created on first
// use and evicted once they sit idle.
//
// Design Notes:
//   - Buckets are golang.org/x/time/rate limiters driven by an injectable clock
//   - Allow never blocks; callers reject the request instead of queueing it
//   - A global bucket caps the whole instance regardless of key
package middleware

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// KeyedLimiter rate limits requests per key plus a shared global budget.
//
// Example usage:
//
//	// 10 requests per second per session, burst of 20
//	limiter := NewKeyedLimiter(10, 20, clockwork.NewRealClock())
//	if !limiter.Allow(sessionID) {
//	    return tooManyRequests()
//	}
type KeyedLimiter struct {
	refillRate rate.Limit
	bucketSize int
	clock      clockwork.Clock

	mu      sync.Mutex
	buckets map[string]*bucket

	global  *rate.Limiter
	allowed int64
	blocked int64
}

// bucket is one key's limiter and when it was last consulted.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter refilling refillRate tokens per second per key with
// bursts up to bucketSize. The global budget is a hundred keys' worth.
func NewKeyedLimiter(refillRate float64, bucketSize int, clock clockwork.Clock) *KeyedLimiter {
	if refillRate <= 0 {
		panic("refillRate must be positive")
	}
	if bucketSize <= 0 {
		panic("bucketSize must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &KeyedLimiter{
		refillRate: rate.Limit(refillRate),
		bucketSize: bucketSize,
		clock:      clock,
		buckets:    make(map[string]*bucket),
		global:     rate.NewLimiter(rate.Limit(refillRate*100), bucketSize*100),
	}
}

// Allow reports whether a request for key may proceed now. An empty key is never allowed.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether n tokens can be taken from key's bucket now.
func (l *KeyedLimiter) AllowN(key string, n int) bool {
	if key == "" || n <= 0 {
		return false
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.refillRate, l.bucketSize)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	// Check the key first so a rejected key does not drain the global budget.
	if b.limiter.TokensAt(now) < float64(n) || l.global.TokensAt(now) < float64(n) {
		l.blocked++
		return false
	}
	b.limiter.AllowN(now, n)
	l.global.AllowN(now, n)
	l.allowed++
	return true
}

// Forget drops key's bucket, e.g. when its session ends.
func (l *KeyedLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// EvictStaleKeys removes buckets unused for longer than staleDuration and returns how
// many were removed. Call this periodically to bound memory.
func (l *KeyedLimiter) EvictStaleKeys(staleDuration time.Duration) int {
	cutoff := l.clock.Now().Add(-staleDuration)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Stats is a snapshot of limiter state.
type Stats struct {
	TotalKeys    int        `json:"total_keys"`
	GlobalTokens float64    `json:"global_tokens"`
	Allowed      int64      `json:"allowed"`
	Blocked      int64      `json:"blocked"`
	Lowest       []KeyStats `json:"lowest,omitempty"` // Keys closest to their limit
}

type KeyStats struct {
	Key    string  `json:"key"`
	Tokens float64 `json:"tokens"`
}

// GetStats returns current limiter statistics with the ten most throttled keys.
func (l *KeyedLimiter) GetStats() Stats {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		TotalKeys:    len(l.buckets),
		GlobalTokens: l.global.TokensAt(now),
		Allowed:      l.allowed,
		Blocked:      l.blocked,
	}

	keys := make([]KeyStats, 0, len(l.buckets))
	for key, b := range l.buckets {
		keys = append(keys, KeyStats{Key: key, Tokens: b.limiter.TokensAt(now)})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Tokens != keys[j].Tokens {
			return keys[i].Tokens < keys[j].Tokens
		}
		return keys[i].Key < keys[j].Key
	})
	if len(keys) > 10 {
		keys = keys[:10]
	}
	stats.Lowest = keys
	return stats
}

// String returns a human-readable representation of the limiter config.
func (l *KeyedLimiter) String() string {
	return fmt.Sprintf("KeyedLimiter{rate=%.1f/s, burst=%d}", float64(l.refillRate), l.bucketSize)
}
