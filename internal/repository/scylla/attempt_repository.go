package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"secmon-service/internal/models"
)

// Attempt rows carry a TTL so the look-back tables stay bounded
const attemptTTLSeconds = 30 * 24 * 60 * 60

// AttemptRepository persists login attempts into two query tables, one keyed
// by email hash and one by source IP, so the guard can look back by either.
type AttemptRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewAttemptRepository(client *ScyllaClient, logger *zap.Logger) *AttemptRepository {
	return &AttemptRepository{
		client: client,
		logger: logger,
	}
}

func (r *AttemptRepository) Insert(ctx context.Context, attempt *models.LoginAttempt) error {
	batch := r.client.Batch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(`
        INSERT INTO login_attempts_by_email (
            email_hash, attempted_at, attempt_id, ip_address, success,
            blocked_until, user_agent
        ) VALUES (?, ?, ?, ?, ?, ?, ?) USING TTL ?`,
		attempt.EmailHash, attempt.AttemptedAt, attempt.AttemptID,
		attempt.IPAddress, attempt.Success, attempt.BlockedUntil,
		attempt.UserAgent, attemptTTLSeconds)

	if attempt.IPAddress != "" {
		batch.Query(`
            INSERT INTO login_attempts_by_ip (
                ip_address, attempted_at, attempt_id, email_hash, success,
                blocked_until, user_agent
            ) VALUES (?, ?, ?, ?, ?, ?, ?) USING TTL ?`,
			attempt.IPAddress, attempt.AttemptedAt, attempt.AttemptID,
			attempt.EmailHash, attempt.Success, attempt.BlockedUntil,
			attempt.UserAgent, attemptTTLSeconds)
	}

	if err := r.client.ExecuteBatch(batch); err != nil {
		r.logger.Error("Failed to insert login attempt",
			zap.String("email_hash", attempt.EmailHash),
			zap.Error(err))
		return fmt.Errorf("failed to insert login attempt: %w", err)
	}

	return nil
}

// RecentByEmail returns attempts for an email hash newer than the given time
func (r *AttemptRepository) RecentByEmail(ctx context.Context, emailHash string, since time.Time) ([]*models.LoginAttempt, error) {
	iter := r.client.Prepared.RecentByEmail.
		Bind(emailHash, since).WithContext(ctx).Iter()
	return r.collect(iter, "email")
}

// RecentByIP returns attempts from a source IP newer than the given time
func (r *AttemptRepository) RecentByIP(ctx context.Context, ip string, since time.Time) ([]*models.LoginAttempt, error) {
	iter := r.client.Prepared.RecentByIP.
		Bind(ip, since).WithContext(ctx).Iter()
	return r.collect(iter, "ip")
}

func (r *AttemptRepository) collect(iter *gocql.Iter, table string) ([]*models.LoginAttempt, error) {
	var attempts []*models.LoginAttempt

	for {
		var (
			attempt      models.LoginAttempt
			blockedUntil time.Time
		)
		if !iter.Scan(&attempt.AttemptID, &attempt.EmailHash, &attempt.IPAddress,
			&attempt.Success, &blockedUntil, &attempt.UserAgent, &attempt.AttemptedAt) {
			break
		}
		if !blockedUntil.IsZero() {
			attempt.BlockedUntil = &blockedUntil
		}
		attempts = append(attempts, &attempt)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to query login attempts by %s: %w", table, err)
	}

	return attempts, nil
}
