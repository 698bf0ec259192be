package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"secmon-service/internal/models"
	"secmon-service/internal/util"
)

// SessionRepository persists session records. Sessions are keyed by token,
// with a user_sessions lookup table for bulk revocation.
type SessionRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewSessionRepository(client *ScyllaClient, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
		logger: logger,
	}
}

func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(`
        INSERT INTO sessions (
            session_token, id, user_id, ip_address, user_agent, is_active,
            created_at, last_activity, expires_at, invalidated_at, invalidated_reason
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionToken, session.ID, session.UserID, session.IPAddress,
		session.UserAgent, session.IsActive, session.CreatedAt,
		session.LastActivity, session.ExpiresAt, session.InvalidatedAt,
		session.InvalidatedReason)

	batch.Query(`
        INSERT INTO user_sessions (user_id, session_token, created_at)
        VALUES (?, ?, ?)`,
		session.UserID, session.SessionToken, session.CreatedAt)

	if err := r.client.ExecuteBatch(batch); err != nil {
		r.logger.Error("Failed to insert session",
			zap.String("user_id", session.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (r *SessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	var (
		session       models.Session
		invalidatedAt time.Time
	)

	err := r.client.Prepared.GetSessionByToken.Bind(token).WithContext(ctx).Scan(
		&session.SessionToken, &session.ID, &session.UserID, &session.IPAddress,
		&session.UserAgent, &session.IsActive, &session.CreatedAt,
		&session.LastActivity, &session.ExpiresAt, &invalidatedAt,
		&session.InvalidatedReason,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if !invalidatedAt.IsZero() {
		session.InvalidatedAt = &invalidatedAt
	}
	return &session, nil
}

// UpdateActivity bumps last_activity on active rows only. Returns false when
// the token is unknown, expired, or already invalidated.
func (r *SessionRepository) UpdateActivity(ctx context.Context, token string, at time.Time) (bool, error) {
	applied, err := r.client.Prepared.UpdateActivity.
		Bind(at, token).WithContext(ctx).ScanCAS()
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to update session activity: %w", err)
	}
	return applied, nil
}

// Invalidate marks a session inactive. The conditional write makes repeated
// invalidation a no-op; callers treat "not applied" on an existing row as success.
func (r *SessionRepository) Invalidate(ctx context.Context, token, reason string, at time.Time) (bool, error) {
	applied, err := r.client.Prepared.InvalidateSession.
		Bind(at, reason, token).WithContext(ctx).ScanCAS()
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to invalidate session: %w", err)
	}
	return applied, nil
}

func (r *SessionRepository) TokensForUser(ctx context.Context, userID string) ([]string, error) {
	iter := r.client.Prepared.GetUserSessions.Bind(userID).WithContext(ctx).Iter()

	var tokens []string
	var token string
	for iter.Scan(&token) {
		tokens = append(tokens, token)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list user sessions: %w", err)
	}

	return tokens, nil
}

// ExpiredTokens returns tokens of still-active sessions whose expiry has passed
func (r *SessionRepository) ExpiredTokens(ctx context.Context, now time.Time) ([]string, error) {
	iter := r.client.Prepared.SelectActiveExpired.Bind(now).WithContext(ctx).Iter()

	var tokens []string
	var token string
	for iter.Scan(&token) {
		tokens = append(tokens, token)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to select expired sessions: %w", err)
	}

	if len(tokens) > 0 {
		util.Debug("Expired sessions selected", zap.Int("count", len(tokens)))
	}
	return tokens, nil
}
