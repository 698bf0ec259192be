package security

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeCounter) IncrementCounter(_ context.Context, key string, _ time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func TestRateLimiterWithinBudget(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Allow(ctx, "client-1", 5, time.Minute) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if rl.Allow(ctx, "client-1", 5, time.Minute) {
		t.Fatal("6th request allowed, want denied")
	}
}

func TestRateLimiterIndependentIdentifiers(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rl.Allow(ctx, "client-a", 3, time.Minute)
	}
	if rl.Allow(ctx, "client-a", 3, time.Minute) {
		t.Fatal("client-a over budget, want denied")
	}
	if !rl.Allow(ctx, "client-b", 3, time.Minute) {
		t.Fatal("client-b first request denied, want allowed")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	window := 50 * time.Millisecond
	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "client-1", 2, window)
	}
	if rl.Allow(ctx, "client-1", 2, window) {
		t.Fatal("over budget, want denied")
	}

	time.Sleep(window + 20*time.Millisecond)

	if !rl.Allow(ctx, "client-1", 2, window) {
		t.Fatal("request after window elapsed denied, want allowed")
	}
}

func TestRateLimiterUsesSharedCounter(t *testing.T) {
	counter := &fakeCounter{}
	rl := NewRateLimiter(counter)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !rl.Allow(ctx, "client-1", 3, time.Minute) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if rl.Allow(ctx, "client-1", 3, time.Minute) {
		t.Fatal("4th request allowed, want denied")
	}
	if counter.counts["client-1"] != 4 {
		t.Errorf("shared counter = %d, want 4", counter.counts["client-1"])
	}
}

func TestRateLimiterFallsBackWhenCounterFails(t *testing.T) {
	counter := &fakeCounter{err: errors.New("connection refused")}
	rl := NewRateLimiter(counter)
	ctx := context.Background()

	// Shared counter unavailable; local windows keep the budget enforced
	for i := 0; i < 2; i++ {
		if !rl.Allow(ctx, "client-1", 2, time.Minute) {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	if rl.Allow(ctx, "client-1", 2, time.Minute) {
		t.Fatal("3rd request allowed, want denied")
	}
}

func TestRateLimiterRejectsInvalidInput(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	if rl.Allow(ctx, "", 5, time.Minute) {
		t.Error("empty identifier allowed, want denied")
	}
	if rl.Allow(ctx, "client-1", 0, time.Minute) {
		t.Error("zero budget allowed, want denied")
	}
	if rl.Allow(ctx, "client-1", 5, 0) {
		t.Error("zero window allowed, want denied")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rl.Allow(ctx, "client-1", 2, time.Minute)
	}
	if rl.Allow(ctx, "client-1", 2, time.Minute) {
		t.Fatal("over budget, want denied")
	}

	rl.Reset("client-1")

	if !rl.Allow(ctx, "client-1", 2, time.Minute) {
		t.Fatal("request after reset denied, want allowed")
	}
}
