package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"secmon-service/internal/audit"
	"secmon-service/internal/config"
	"secmon-service/internal/models"
	"secmon-service/internal/util"
)

// tokenBytes is the entropy of a session token; tokens are hex-encoded
const tokenBytes = 32

// Store is the durable session store, implemented by the Scylla session
// repository
type Store interface {
	Insert(ctx context.Context, session *models.Session) error
	GetByToken(ctx context.Context, token string) (*models.Session, error)
	UpdateActivity(ctx context.Context, token string, at time.Time) (bool, error)
	Invalidate(ctx context.Context, token, reason string, at time.Time) (bool, error)
	TokensForUser(ctx context.Context, userID string) ([]string, error)
	ExpiredTokens(ctx context.Context, now time.Time) ([]string, error)
}

// ActivityCache is the optional hot cache in front of the store, implemented
// by the Redis session cache. All cache calls are best-effort.
type ActivityCache interface {
	TrackSession(ctx context.Context, userID, token string, ttl time.Duration) error
	TouchActivity(ctx context.Context, token string, at time.Time) error
	Forget(ctx context.Context, userID, token string) error
	UserTokens(ctx context.Context, userID string) ([]string, error)
}

// CreateOptions carries the caller-supplied attributes of a new session
type CreateOptions struct {
	ShortLived bool
	IPAddress  string
	UserAgent  string
}

// Manager owns the session lifecycle: issuance, activity tracking, revocation,
// and the periodic expiry sweep.
type Manager struct {
	store  Store
	cache  ActivityCache
	audit  audit.Recorder
	logger *zap.Logger

	defaultTTL    time.Duration
	shortTTL      time.Duration
	sweepInterval time.Duration

	sweepGroup singleflight.Group

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg *config.Config, store Store, cache ActivityCache, auditSink audit.Recorder, logger *zap.Logger) *Manager {
	return &Manager{
		store:         store,
		cache:         cache,
		audit:         auditSink,
		logger:        logger,
		defaultTTL:    cfg.Session.DefaultTTL,
		shortTTL:      cfg.Session.ShortTTL,
		sweepInterval: cfg.Session.SweepInterval,
	}
}

// Create issues a new session token for the user. The expiry is fixed at
// creation and never extended afterwards.
func (m *Manager) Create(ctx context.Context, userID string, opts CreateOptions) (string, error) {
	if err := util.ValidateIdentifier(userID); err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}
	if err := util.ValidateIP(opts.IPAddress); err != nil {
		m.logger.Warn("Session create with malformed ip", zap.String("ip", opts.IPAddress))
		opts.IPAddress = ""
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	ttl := m.defaultTTL
	if opts.ShortLived {
		ttl = m.shortTTL
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		SessionToken: token,
		IPAddress:    opts.IPAddress,
		UserAgent:    util.Truncate(opts.UserAgent, 256),
		IsActive:     true,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
	}

	if err := m.store.Insert(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	if m.cache != nil {
		if err := m.cache.TrackSession(ctx, userID, token, ttl); err != nil {
			m.logger.Warn("Failed to cache new session", zap.Error(err))
		}
	}

	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionSessionCreated,
		ResourceType: "session",
		ResourceID:   session.ID,
		UserID:       userID,
		Success:      true,
		RiskLevel:    models.RiskLow,
		IPAddress:    opts.IPAddress,
		Details: map[string]string{
			"expires_at": session.ExpiresAt.Format(time.RFC3339),
		},
	})

	return token, nil
}

// UpdateActivity bumps last-activity for an active, unexpired session. Returns
// false for unknown, invalidated, or expired tokens; an expired token is
// invalidated on the spot rather than waiting for the sweep.
func (m *Manager) UpdateActivity(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	now := time.Now().UTC()

	session, err := m.store.GetByToken(ctx, token)
	if err != nil {
		m.logger.Error("Session lookup failed", zap.Error(err))
		return false
	}
	if session == nil || !session.IsActive {
		return false
	}

	if session.Expired(now) {
		if _, err := m.store.Invalidate(ctx, token, "Session expired", now); err != nil {
			m.logger.Warn("Failed to invalidate expired session", zap.Error(err))
		}
		m.forgetCached(ctx, session.UserID, token)
		return false
	}

	applied, err := m.store.UpdateActivity(ctx, token, now)
	if err != nil {
		m.logger.Error("Failed to update session activity", zap.Error(err))
		return false
	}

	if applied && m.cache != nil {
		if err := m.cache.TouchActivity(ctx, token, now); err != nil {
			m.logger.Warn("Failed to touch cached session activity", zap.Error(err))
		}
	}

	return applied
}

// Invalidate revokes a session. Invalidating an already-inactive session is a
// no-op success; an unknown token returns false.
func (m *Manager) Invalidate(ctx context.Context, token, reason string) bool {
	if token == "" {
		return false
	}

	now := time.Now().UTC()

	session, err := m.store.GetByToken(ctx, token)
	if err != nil {
		m.logger.Error("Session lookup failed", zap.Error(err))
		return false
	}
	if session == nil {
		return false
	}
	if !session.IsActive {
		return true
	}

	if _, err := m.store.Invalidate(ctx, token, reason, now); err != nil {
		m.logger.Error("Failed to invalidate session", zap.Error(err))
		return false
	}

	m.forgetCached(ctx, session.UserID, token)

	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionSessionInvalidated,
		ResourceType: "session",
		ResourceID:   session.ID,
		UserID:       session.UserID,
		Success:      true,
		RiskLevel:    models.RiskLow,
		Details: map[string]string{
			"reason": reason,
		},
	})

	return true
}

// InvalidateAllForUser revokes every active session of a user and emits a
// single high-risk event carrying the count
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID, reason string) (int, error) {
	if err := util.ValidateIdentifier(userID); err != nil {
		return 0, fmt.Errorf("invalid user id: %w", err)
	}

	tokens, err := m.store.TokensForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list user sessions: %w", err)
	}

	now := time.Now().UTC()
	count := 0
	for _, token := range tokens {
		applied, err := m.store.Invalidate(ctx, token, reason, now)
		if err != nil {
			m.logger.Warn("Failed to invalidate user session",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		if applied {
			count++
		}
		m.forgetCached(ctx, userID, token)
	}

	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionAllSessionsInvalidated,
		ResourceType: "session",
		ResourceID:   userID,
		UserID:       userID,
		Success:      true,
		RiskLevel:    models.RiskHigh,
		Details: map[string]string{
			"reason": reason,
			"count":  strconv.Itoa(count),
		},
	})

	return count, nil
}

// Start launches the periodic expiry sweep. Calling Start twice is a no-op;
// Stop cancels the loop and waits for it to exit.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(sweepCtx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// Stop halts the sweep loop
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// sweep invalidates sessions past their expiry. Overlapping sweeps collapse
// into one via singleflight.
func (m *Manager) sweep(ctx context.Context) {
	_, _, _ = m.sweepGroup.Do("expired-sessions", func() (interface{}, error) {
		now := time.Now().UTC()

		tokens, err := m.store.ExpiredTokens(ctx, now)
		if err != nil {
			m.logger.Error("Expired session sweep failed", zap.Error(err))
			return nil, nil
		}

		count := 0
		for _, token := range tokens {
			if ctx.Err() != nil {
				break
			}
			applied, err := m.store.Invalidate(ctx, token, "Session expired", now)
			if err != nil {
				m.logger.Warn("Failed to invalidate expired session", zap.Error(err))
				continue
			}
			if applied {
				count++
			}
		}

		if count > 0 {
			m.audit.Record(&models.SecurityEvent{
				Action:       models.ActionExpiredSessionsCleanup,
				ResourceType: "session",
				Success:      true,
				RiskLevel:    models.RiskLow,
				Details: map[string]string{
					"count": strconv.Itoa(count),
				},
			})
			m.logger.Info("Expired sessions cleaned up", zap.Int("count", count))
		}

		return nil, nil
	})
}

func (m *Manager) forgetCached(ctx context.Context, userID, token string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Forget(ctx, userID, token); err != nil {
		m.logger.Warn("Failed to drop cached session", zap.Error(err))
	}
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
