// Package ratelimit provides an in-process sliding-window request counter
// keyed by an arbitrary string (API key or client address), consulted by
// write paths before they reach the engine. A sliding window rather than a
// plain token bucket, since callers need an exact per-minute budget rather
// than a burst-smoothed approximation, with an x/time/rate token bucket
// kept as a cheap pre-filter so a single saturated key can't walk the full
// window slice on every request.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls the window size and request budget per key.
type Config struct {
	Limit  int           // max requests per Window
	Window time.Duration
}

// DefaultConfig allows 120 requests/minute per key.
func DefaultConfig() Config {
	return Config{Limit: 120, Window: time.Minute}
}

type bucket struct {
	preFilter *rate.Limiter
	hits      []time.Time
}

// Limiter is a sliding-window counter keyed by an arbitrary string. Safe
// for concurrent use; a caller typically keys by API key for writes and by
// client address for registration.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket
}

// New constructs a Limiter. A non-positive Limit or Window falls back to
// DefaultConfig.
func New(cfg Config) *Limiter {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		cfg = DefaultConfig()
	}
	return &Limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// Allow reports whether a request keyed by key may proceed now, recording
// it if so. It never blocks.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow with an explicit clock, for deterministic tests.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			preFilter: rate.NewLimiter(rate.Limit(float64(l.cfg.Limit)/l.cfg.Window.Seconds()), l.cfg.Limit),
		}
		l.buckets[key] = b
	}
	if !b.preFilter.AllowN(now, 1) {
		return false
	}

	cutoff := now.Add(-l.cfg.Window)
	kept := b.hits[:0]
	for _, t := range b.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.hits = kept

	if len(b.hits) >= l.cfg.Limit {
		return false
	}
	b.hits = append(b.hits, now)
	return true
}

// Reset clears all tracked keys, for test isolation.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}

// Forget drops the bucket for a single key, e.g. after an agent is
// deleted, to bound memory growth.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}
