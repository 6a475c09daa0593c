package security

import (
	"errors"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{InvocationsPerMin: 3})
	for i := 0; i < 3; i++ {
		if err := rl.Allow("invocation"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if err := rl.Allow("invocation"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rl := NewRateLimiter(RateLimitConfig{InferencesPerMin: 1})
	rl.now = func() time.Time { return now }

	if err := rl.Allow("inference"); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := rl.Allow("inference"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second: got %v", err)
	}

	now = now.Add(61 * time.Second)
	if err := rl.Allow("inference"); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestRateLimiterUnknownKindUnlimited(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 1000; i++ {
		if err := rl.Allow("other"); err != nil {
			t.Fatalf("unknown kind limited: %v", err)
		}
	}
}
