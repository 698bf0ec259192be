package security

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"secmon-service/internal/bucketing"
	"secmon-service/internal/config"
	"secmon-service/internal/hashing"
	"secmon-service/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Hashing:     config.HashingConfig{PepperRotationDays: 30},
		Bucketing:   config.BucketingConfig{EventBuckets: 16, AttemptBuckets: 16},
		Security: config.SecurityConfig{
			RateLimitMaxRequests: 100,
			RateLimitWindow:      time.Minute,
			LockoutThreshold:     5,
			LockoutLookback:      15 * time.Minute,
			LockoutDuration:      30 * time.Minute,
			AuditQueueSize:       64,
			AuditWriteTimeout:    time.Second,
		},
		Session: config.SessionConfig{
			DefaultTTL:    24 * time.Hour,
			ShortTTL:      8 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
	}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (f *fakeRecorder) Record(event *models.SecurityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeRecorder) byAction(action string) []*models.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SecurityEvent
	for _, e := range f.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeAttemptStore struct {
	mu        sync.Mutex
	attempts  []*models.LoginAttempt
	insertErr error
	queryErr  error
}

func (f *fakeAttemptStore) Insert(_ context.Context, attempt *models.LoginAttempt) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeAttemptStore) RecentByEmail(_ context.Context, emailHash string, since time.Time) ([]*models.LoginAttempt, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LoginAttempt
	for _, a := range f.attempts {
		if a.EmailHash == emailHash && a.AttemptedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) RecentByIP(_ context.Context, ip string, since time.Time) ([]*models.LoginAttempt, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LoginAttempt
	for _, a := range f.attempts {
		if a.IPAddress == ip && a.AttemptedAt.After(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAttemptStore) lockoutRecords() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.BlockedUntil != nil {
			n++
		}
	}
	return n
}

func newTestGuard(t *testing.T, store AttemptStore, recorder *fakeRecorder) *LoginAttemptGuard {
	t.Helper()
	cfg := testConfig()
	return NewLoginAttemptGuard(
		cfg,
		store,
		nil,
		hashing.NewHasher(cfg),
		nil,
		bucketing.NewBucketingManager(cfg),
		recorder,
		zap.NewNop(),
	)
}

func TestGuardAllowsSuccessfulLogin(t *testing.T) {
	store := &fakeAttemptStore{}
	recorder := &fakeRecorder{}
	guard := newTestGuard(t, store, recorder)

	if !guard.CheckAndRecord(context.Background(), "user@example.com", true, "203.0.113.7", "test-agent") {
		t.Fatal("successful login denied, want allowed")
	}

	if len(store.attempts) != 1 {
		t.Fatalf("persisted %d attempts, want 1", len(store.attempts))
	}
	if !store.attempts[0].Success {
		t.Error("persisted attempt marked as failure")
	}

	events := recorder.byAction(models.ActionLoginAttempt)
	if len(events) != 1 {
		t.Fatalf("recorded %d login_attempt events, want 1", len(events))
	}
	if events[0].RiskLevel != models.RiskLow {
		t.Errorf("event risk = %s, want low", events[0].RiskLevel)
	}
}

func TestGuardLockoutAtThreshold(t *testing.T) {
	store := &fakeAttemptStore{}
	recorder := &fakeRecorder{}
	guard := newTestGuard(t, store, recorder)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if !guard.CheckAndRecord(ctx, "user@example.com", false, "203.0.113.7", "test-agent") {
			t.Fatalf("failure %d denied before threshold", i+1)
		}
	}

	// Fifth failure crosses the threshold
	if guard.CheckAndRecord(ctx, "user@example.com", false, "203.0.113.7", "test-agent") {
		t.Fatal("5th failure allowed, want denied")
	}

	if got := store.lockoutRecords(); got != 1 {
		t.Errorf("lockout records = %d, want 1", got)
	}
	if events := recorder.byAction(models.ActionRateLimitTriggered); len(events) != 1 {
		t.Errorf("rate_limit_triggered events = %d, want 1", len(events))
	}
}

func TestGuardDeniesDuringLockoutWithoutDuplicate(t *testing.T) {
	store := &fakeAttemptStore{}
	recorder := &fakeRecorder{}
	guard := newTestGuard(t, store, recorder)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		guard.CheckAndRecord(ctx, "user@example.com", false, "203.0.113.7", "test-agent")
	}

	// Even a correct password is denied while the lockout stands
	if guard.CheckAndRecord(ctx, "user@example.com", true, "203.0.113.7", "test-agent") {
		t.Fatal("login during lockout allowed, want denied")
	}

	if got := store.lockoutRecords(); got != 1 {
		t.Errorf("lockout records = %d, want exactly 1", got)
	}
}

func TestGuardCountsFailuresByIP(t *testing.T) {
	store := &fakeAttemptStore{}
	recorder := &fakeRecorder{}
	guard := newTestGuard(t, store, recorder)
	ctx := context.Background()

	// Same attacker IP cycling through different accounts
	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, email := range emails {
		guard.CheckAndRecord(ctx, email, false, "203.0.113.66", "test-agent")
	}

	if guard.CheckAndRecord(ctx, "e@example.com", false, "203.0.113.66", "test-agent") {
		t.Fatal("5th failure from same ip allowed, want denied")
	}
}

func TestGuardFailsOpenOnStoreError(t *testing.T) {
	store := &fakeAttemptStore{queryErr: errors.New("timeout")}
	recorder := &fakeRecorder{}
	guard := newTestGuard(t, store, recorder)

	if !guard.CheckAndRecord(context.Background(), "user@example.com", false, "203.0.113.7", "test-agent") {
		t.Fatal("login denied on store error, want fail open")
	}
}

func TestGuardRejectsMalformedEmail(t *testing.T) {
	store := &fakeAttemptStore{}
	recorder := &fakeRecorder{}
	guard := newTestGuard(t, store, recorder)

	if guard.CheckAndRecord(context.Background(), "not-an-email", true, "", "") {
		t.Fatal("malformed email allowed, want denied")
	}
	if len(store.attempts) != 0 {
		t.Errorf("persisted %d attempts for malformed email, want 0", len(store.attempts))
	}
}
