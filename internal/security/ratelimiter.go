package security

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"secmon-service/internal/util"
)

// pruneThreshold bounds the in-memory fallback map; once the map grows past
// this many identifiers, expired windows are swept on the next call
const pruneThreshold = 1024

// WindowCounter is the shared counter behind the limiter. Implemented by the
// Redis rate-limit cache; nil means the limiter runs purely in memory.
type WindowCounter interface {
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int, error)
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter enforces a fixed-window request budget per identifier. The
// shared counter is authoritative; when it is unavailable the limiter falls
// back to a process-local window rather than denying traffic.
type RateLimiter struct {
	counter WindowCounter

	mu      sync.Mutex
	windows map[string]*rateWindow
}

func NewRateLimiter(counter WindowCounter) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		windows: make(map[string]*rateWindow),
	}
}

// Allow counts one request against the identifier's current window and
// reports whether it fits within maxRequests. The first maxRequests calls in
// a window pass; the next call in the same window is denied.
func (rl *RateLimiter) Allow(ctx context.Context, identifier string, maxRequests int, window time.Duration) bool {
	if err := util.ValidateIdentifier(identifier); err != nil {
		util.Warn("Rate limit check with invalid identifier", zap.Error(err))
		return false
	}
	if maxRequests <= 0 || window <= 0 {
		return false
	}

	if rl.counter != nil {
		count, err := rl.counter.IncrementCounter(ctx, identifier, window)
		if err == nil {
			return count <= maxRequests
		}
		util.Warn("Shared rate limit counter unavailable, using local window",
			zap.String("identifier", identifier),
			zap.Error(err))
	}

	return rl.allowLocal(identifier, maxRequests, window)
}

func (rl *RateLimiter) allowLocal(identifier string, maxRequests int, window time.Duration) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[identifier]
	if !ok || now.After(w.resetAt) {
		if len(rl.windows) >= pruneThreshold {
			rl.pruneLocked(now)
		}
		rl.windows[identifier] = &rateWindow{count: 1, resetAt: now.Add(window)}
		return maxRequests >= 1
	}

	w.count++
	return w.count <= maxRequests
}

// pruneLocked drops expired windows. Caller holds rl.mu.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for id, w := range rl.windows {
		if now.After(w.resetAt) {
			delete(rl.windows, id)
		}
	}
}

// Reset clears the local window for an identifier. The shared counter, when
// present, is reset by its own TTL.
func (rl *RateLimiter) Reset(identifier string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, identifier)
}
