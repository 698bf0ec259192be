package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"secmon-service/internal/config"
	"secmon-service/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Session: config.SessionConfig{
			DefaultTTL:    24 * time.Hour,
			ShortTTL:      8 * time.Hour,
			SweepInterval: 20 * time.Millisecond,
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

type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*models.Session)}
}

func (f *fakeStore) Insert(_ context.Context, session *models.Session) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *session
	f.sessions[session.SessionToken] = &copied
	return nil
}

func (f *fakeStore) GetByToken(_ context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeStore) UpdateActivity(_ context.Context, token string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.LastActivity = at
	return true, nil
}

func (f *fakeStore) Invalidate(_ context.Context, token, reason string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	s.InvalidatedAt = &at
	s.InvalidatedReason = reason
	return true, nil
}

func (f *fakeStore) TokensForUser(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tokens []string
	for token, s := range f.sessions {
		if s.UserID == userID {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (f *fakeStore) ExpiredTokens(_ context.Context, now time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tokens []string
	for token, s := range f.sessions {
		if s.IsActive && now.After(s.ExpiresAt) {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (f *fakeStore) get(token string) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[token]
}

func newTestManager(store *fakeStore, recorder *fakeRecorder) *Manager {
	return NewManager(testConfig(), store, nil, recorder, zap.NewNop())
}

func TestCreateSession(t *testing.T) {
	store := newFakeStore()
	recorder := &fakeRecorder{}
	m := newTestManager(store, recorder)

	token, err := m.Create(context.Background(), "user-1", CreateOptions{
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(token) != tokenBytes*2 {
		t.Errorf("token length = %d, want %d hex chars", len(token), tokenBytes*2)
	}

	s := store.get(token)
	if s == nil {
		t.Fatal("session not persisted")
	}
	if !s.IsActive {
		t.Error("new session not active")
	}
	if want := s.CreatedAt.Add(24 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", s.ExpiresAt, want)
	}

	if events := recorder.byAction(models.ActionSessionCreated); len(events) != 1 {
		t.Errorf("session_created events = %d, want 1", len(events))
	}
}

func TestCreateSessionShortLived(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeRecorder{})

	token, err := m.Create(context.Background(), "user-1", CreateOptions{ShortLived: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	s := store.get(token)
	if want := s.CreatedAt.Add(8 * time.Hour); !s.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", s.ExpiresAt, want)
	}
}

func TestCreateSessionUniqueTokens(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeRecorder{})

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := m.Create(context.Background(), "user-"+strconv.Itoa(i), CreateOptions{})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if seen[token] {
			t.Fatal("duplicate session token issued")
		}
		seen[token] = true
	}
}

func TestCreateSessionStoreError(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("write timeout")
	m := newTestManager(store, &fakeRecorder{})

	if _, err := m.Create(context.Background(), "user-1", CreateOptions{}); err == nil {
		t.Fatal("Create succeeded despite store error")
	}
}

func TestUpdateActivity(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeRecorder{})
	ctx := context.Background()

	token, _ := m.Create(ctx, "user-1", CreateOptions{})
	before := store.get(token).LastActivity

	time.Sleep(5 * time.Millisecond)

	if !m.UpdateActivity(ctx, token) {
		t.Fatal("UpdateActivity returned false for active session")
	}
	if !store.get(token).LastActivity.After(before) {
		t.Error("last_activity not advanced")
	}

	// Expiry must not move
	if got, want := store.get(token).ExpiresAt, store.get(token).CreatedAt.Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("expires_at moved to %v", got)
	}
}

func TestUpdateActivityUnknownToken(t *testing.T) {
	m := newTestManager(newFakeStore(), &fakeRecorder{})

	if m.UpdateActivity(context.Background(), "no-such-token") {
		t.Fatal("UpdateActivity returned true for unknown token")
	}
	if m.UpdateActivity(context.Background(), "") {
		t.Fatal("UpdateActivity returned true for empty token")
	}
}

func TestUpdateActivityExpiredSession(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeRecorder{})
	ctx := context.Background()

	token, _ := m.Create(ctx, "user-1", CreateOptions{})
	store.mu.Lock()
	store.sessions[token].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	store.mu.Unlock()

	if m.UpdateActivity(ctx, token) {
		t.Fatal("UpdateActivity returned true for expired session")
	}
	// Expired session is invalidated on touch
	if store.get(token).IsActive {
		t.Error("expired session still active after touch")
	}
}

func TestInvalidateSession(t *testing.T) {
	store := newFakeStore()
	recorder := &fakeRecorder{}
	m := newTestManager(store, recorder)
	ctx := context.Background()

	token, _ := m.Create(ctx, "user-1", CreateOptions{})

	if !m.Invalidate(ctx, token, "User logout") {
		t.Fatal("Invalidate returned false for active session")
	}
	s := store.get(token)
	if s.IsActive {
		t.Error("session still active")
	}
	if s.InvalidatedReason != "User logout" {
		t.Errorf("reason = %q", s.InvalidatedReason)
	}

	// Repeat invalidation is a no-op success
	if !m.Invalidate(ctx, token, "again") {
		t.Fatal("repeated Invalidate returned false")
	}
	if events := recorder.byAction(models.ActionSessionInvalidated); len(events) != 1 {
		t.Errorf("session_invalidated events = %d, want 1", len(events))
	}

	if m.Invalidate(ctx, "no-such-token", "x") {
		t.Fatal("Invalidate returned true for unknown token")
	}
}

func TestInvalidateAllForUser(t *testing.T) {
	store := newFakeStore()
	recorder := &fakeRecorder{}
	m := newTestManager(store, recorder)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Create(ctx, "user-1", CreateOptions{})
	}
	other, _ := m.Create(ctx, "user-2", CreateOptions{})

	count, err := m.InvalidateAllForUser(ctx, "user-1", "Password changed")
	if err != nil {
		t.Fatalf("InvalidateAllForUser: %v", err)
	}
	if count != 3 {
		t.Errorf("invalidated %d sessions, want 3", count)
	}
	if !store.get(other).IsActive {
		t.Error("other user's session invalidated")
	}

	events := recorder.byAction(models.ActionAllSessionsInvalidated)
	if len(events) != 1 {
		t.Fatalf("all_sessions_invalidated events = %d, want 1", len(events))
	}
	if events[0].RiskLevel != models.RiskHigh {
		t.Errorf("event risk = %s, want high", events[0].RiskLevel)
	}
	if events[0].Details["count"] != "3" {
		t.Errorf("event count = %q, want 3", events[0].Details["count"])
	}
}

func TestSweepInvalidatesExpired(t *testing.T) {
	store := newFakeStore()
	recorder := &fakeRecorder{}
	m := newTestManager(store, recorder)
	ctx := context.Background()

	live, _ := m.Create(ctx, "user-1", CreateOptions{})
	expired, _ := m.Create(ctx, "user-1", CreateOptions{})
	store.mu.Lock()
	store.sessions[expired].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	store.mu.Unlock()

	m.sweep(ctx)

	if store.get(expired).IsActive {
		t.Error("expired session survived sweep")
	}
	if !store.get(live).IsActive {
		t.Error("live session invalidated by sweep")
	}

	events := recorder.byAction(models.ActionExpiredSessionsCleanup)
	if len(events) != 1 {
		t.Fatalf("expired_sessions_cleanup events = %d, want 1", len(events))
	}
	if events[0].Details["count"] != "1" {
		t.Errorf("cleanup count = %q, want 1", events[0].Details["count"])
	}
}

func TestSweepQuietWhenNothingExpired(t *testing.T) {
	store := newFakeStore()
	recorder := &fakeRecorder{}
	m := newTestManager(store, recorder)
	ctx := context.Background()

	m.Create(ctx, "user-1", CreateOptions{})
	m.sweep(ctx)

	if events := recorder.byAction(models.ActionExpiredSessionsCleanup); len(events) != 0 {
		t.Errorf("cleanup events = %d, want 0", len(events))
	}
}

func TestStartAndStopSweepLoop(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(store, &fakeRecorder{})
	ctx := context.Background()

	expired, _ := m.Create(ctx, "user-1", CreateOptions{})
	store.mu.Lock()
	store.sessions[expired].ExpiresAt = time.Now().UTC().Add(-time.Minute)
	store.mu.Unlock()

	m.Start(ctx)
	m.Start(ctx) // second Start is a no-op

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !store.get(expired).IsActive {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if store.get(expired).IsActive {
		t.Error("sweep loop did not invalidate expired session")
	}

	m.Stop()
	m.Stop() // second Stop is a no-op
}

func TestCreateSessionInvalidUser(t *testing.T) {
	m := newTestManager(newFakeStore(), &fakeRecorder{})

	if _, err := m.Create(context.Background(), "", CreateOptions{}); err == nil {
		t.Fatal("Create succeeded with empty user id")
	}
}
