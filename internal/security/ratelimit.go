package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable rate limits for the dispatcher.
type RateLimitConfig struct {
	InvocationsPerMin int `yaml:"invocations_per_min"`
	InferencesPerMin  int `yaml:"inferences_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		InvocationsPerMin: 500,
		InferencesPerMin:  120,
	}
}

// RateLimiter implements sliding window rate limiting using stdlib only.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config. Zero-value
// fields are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.InvocationsPerMin <= 0 {
		cfg.InvocationsPerMin = defaults.InvocationsPerMin
	}
	if cfg.InferencesPerMin <= 0 {
		cfg.InferencesPerMin = defaults.InferencesPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			"invocation": {window: time.Minute, limit: cfg.InvocationsPerMin},
			"inference":  {window: time.Minute, limit: cfg.InferencesPerMin},
		},
	}
}

// Allow checks whether an event of the given kind is allowed. Returns nil
// if allowed, ErrRateLimited if the limit is exceeded. kind is one of
// "invocation" or "inference"; unknown kinds carry no limit.
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
