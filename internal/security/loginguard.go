package security

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secmon-service/internal/audit"
	"secmon-service/internal/bucketing"
	"secmon-service/internal/config"
	"secmon-service/internal/encryption"
	"secmon-service/internal/hashing"
	"secmon-service/internal/models"
	"secmon-service/internal/util"
)

// AttemptStore persists and queries login attempts. Implemented by the
// Scylla attempt repository.
type AttemptStore interface {
	Insert(ctx context.Context, attempt *models.LoginAttempt) error
	RecentByEmail(ctx context.Context, emailHash string, since time.Time) ([]*models.LoginAttempt, error)
	RecentByIP(ctx context.Context, ip string, since time.Time) ([]*models.LoginAttempt, error)
}

// LockMarker shares short-lived lockout markers across instances so a locked
// account is denied everywhere, not just where the lockout was created.
// Implemented by the Redis rate-limit cache; nil disables the shared marker.
type LockMarker interface {
	SetTemporaryLock(ctx context.Context, key string, ttl time.Duration) error
	IsLocked(ctx context.Context, key string) (bool, error)
}

// LoginAttemptGuard applies the brute-force lockout policy: repeated failures
// for an email or source IP inside the look-back window lock the identifier
// out for the lockout duration. Store failures never lock a legitimate user
// out; the guard fails open and records what it can.
type LoginAttemptGuard struct {
	attempts  AttemptStore
	locks     LockMarker
	hasher    *hashing.Hasher
	crypto    *encryption.EncryptionManager
	bucketing *bucketing.BucketingManager
	audit     audit.Recorder
	logger    *zap.Logger

	threshold int
	lookback  time.Duration
	lockout   time.Duration
}

func NewLoginAttemptGuard(
	cfg *config.Config,
	attempts AttemptStore,
	locks LockMarker,
	hasher *hashing.Hasher,
	crypto *encryption.EncryptionManager,
	bucketingMgr *bucketing.BucketingManager,
	auditSink audit.Recorder,
	logger *zap.Logger,
) *LoginAttemptGuard {
	return &LoginAttemptGuard{
		attempts:  attempts,
		locks:     locks,
		hasher:    hasher,
		crypto:    crypto,
		bucketing: bucketingMgr,
		audit:     auditSink,
		logger:    logger,
		threshold: cfg.Security.LockoutThreshold,
		lookback:  cfg.Security.LockoutLookback,
		lockout:   cfg.Security.LockoutDuration,
	}
}

// CheckAndRecord persists one login outcome and reports whether the caller
// should proceed. It returns false when the email or IP is currently locked
// out, or when this failure crosses the lockout threshold.
func (g *LoginAttemptGuard) CheckAndRecord(ctx context.Context, email string, success bool, ip, userAgent string) bool {
	if err := util.ValidateEmail(email); err != nil {
		g.logger.Warn("Login attempt with malformed email", zap.Error(err))
		return false
	}
	if err := util.ValidateIP(ip); err != nil {
		g.logger.Warn("Login attempt with malformed ip", zap.String("ip", ip), zap.Error(err))
		ip = ""
	}

	normalized := util.NormalizeEmail(email)
	emailHash := g.hasher.LookupHash(normalized)
	now := time.Now().UTC()

	recent, lookupFailed := g.recentAttempts(ctx, normalized, ip, now)

	if g.alreadyLocked(ctx, recent, emailHash, now) {
		// Still record the denied attempt, but never stack a second lockout
		g.persistAttempt(ctx, emailHash, ip, userAgent, false, nil, now)
		g.recordAttemptEvent(ctx, normalized, emailHash, ip, false, models.RiskMedium, map[string]string{
			"denied_reason": "active_lockout",
		})
		return false
	}

	var blockedUntil *time.Time

	if !success && !lookupFailed {
		failures := countFailures(recent)
		// This failure plus the history crosses the threshold
		if failures+1 >= g.threshold {
			until := now.Add(g.lockout)
			blockedUntil = &until
		}
	}

	g.persistAttempt(ctx, emailHash, ip, userAgent, success, blockedUntil, now)

	if blockedUntil != nil {
		g.markLocked(ctx, emailHash, ip)
		g.audit.Record(&models.SecurityEvent{
			Action:       models.ActionRateLimitTriggered,
			ResourceType: "login",
			ResourceID:   emailHash,
			Success:      false,
			RiskLevel:    models.RiskHigh,
			IPAddress:    ip,
			Details: g.withEncryptedEmail(ctx, normalized, map[string]string{
				"email_hash":    emailHash,
				"blocked_until": blockedUntil.Format(time.RFC3339),
				"threshold":     strconv.Itoa(g.threshold),
			}),
		})
		g.logger.Warn("Login lockout triggered",
			zap.String("email_hash", emailHash),
			zap.String("ip", ip),
			zap.Time("blocked_until", *blockedUntil))
		return false
	}

	risk := models.RiskLow
	if !success {
		risk = models.RiskMedium
	}
	g.recordAttemptEvent(ctx, normalized, emailHash, ip, success, risk, nil)

	return true
}

// recentAttempts gathers the look-back history by email hash and source IP.
// Hashes under retired peppers are queried too so a pepper rotation does not
// reset anyone's failure count.
func (g *LoginAttemptGuard) recentAttempts(ctx context.Context, normalized, ip string, now time.Time) ([]*models.LoginAttempt, bool) {
	since := now.Add(-g.lookback)
	var (
		recent       []*models.LoginAttempt
		lookupFailed bool
	)

	for _, hash := range g.hasher.LookupHashes(normalized) {
		attempts, err := g.attempts.RecentByEmail(ctx, hash, since)
		if err != nil {
			g.logger.Error("Login history lookup by email failed", zap.Error(err))
			lookupFailed = true
			continue
		}
		recent = append(recent, attempts...)
	}

	if ip != "" {
		attempts, err := g.attempts.RecentByIP(ctx, ip, since)
		if err != nil {
			g.logger.Error("Login history lookup by ip failed",
				zap.String("ip", ip), zap.Error(err))
			lookupFailed = true
		} else {
			recent = append(recent, attempts...)
		}
	}

	return dedupeAttempts(recent), lookupFailed
}

// dedupeAttempts drops rows seen through both the email and ip tables so one
// attempt never counts twice against the threshold
func dedupeAttempts(attempts []*models.LoginAttempt) []*models.LoginAttempt {
	seen := make(map[string]struct{}, len(attempts))
	out := attempts[:0]
	for _, attempt := range attempts {
		if _, ok := seen[attempt.AttemptID]; ok {
			continue
		}
		seen[attempt.AttemptID] = struct{}{}
		out = append(out, attempt)
	}
	return out
}

func (g *LoginAttemptGuard) alreadyLocked(ctx context.Context, recent []*models.LoginAttempt, emailHash string, now time.Time) bool {
	for _, attempt := range recent {
		if attempt.Blocked(now) {
			return true
		}
	}

	if g.locks != nil {
		locked, err := g.locks.IsLocked(ctx, emailHash)
		if err == nil && locked {
			return true
		}
	}

	return false
}

func countFailures(attempts []*models.LoginAttempt) int {
	failures := 0
	for _, attempt := range attempts {
		if !attempt.Success {
			failures++
		}
	}
	return failures
}

func (g *LoginAttemptGuard) persistAttempt(ctx context.Context, emailHash, ip, userAgent string, success bool, blockedUntil *time.Time, now time.Time) {
	attempt := &models.LoginAttempt{
		AttemptBucket: g.bucketing.GetAttemptBucket(emailHash),
		AttemptID:     uuid.New().String(),
		EmailHash:     emailHash,
		IPAddress:     ip,
		Success:       success,
		BlockedUntil:  blockedUntil,
		UserAgent:     util.Truncate(userAgent, 256),
		AttemptedAt:   now,
	}

	if err := g.attempts.Insert(ctx, attempt); err != nil {
		// Fail open: the outcome is lost but logins keep working
		g.logger.Error("Failed to persist login attempt",
			zap.String("email_hash", emailHash),
			zap.Error(err))
	}
}

func (g *LoginAttemptGuard) markLocked(ctx context.Context, emailHash, ip string) {
	if g.locks == nil {
		return
	}
	if err := g.locks.SetTemporaryLock(ctx, emailHash, g.lockout); err != nil {
		g.logger.Warn("Failed to set shared lockout marker", zap.Error(err))
	}
	if ip != "" {
		if err := g.locks.SetTemporaryLock(ctx, ip, g.lockout); err != nil {
			g.logger.Warn("Failed to set shared lockout marker", zap.Error(err))
		}
	}
}

func (g *LoginAttemptGuard) recordAttemptEvent(ctx context.Context, normalized, emailHash, ip string, success bool, risk models.RiskLevel, extra map[string]string) {
	details := map[string]string{
		"email_hash": emailHash,
	}
	for k, v := range extra {
		details[k] = v
	}

	g.audit.Record(&models.SecurityEvent{
		Action:       models.ActionLoginAttempt,
		ResourceType: "login",
		ResourceID:   emailHash,
		Success:      success,
		RiskLevel:    risk,
		IPAddress:    ip,
		Details:      g.withEncryptedEmail(ctx, normalized, details),
	})
}

// withEncryptedEmail adds the raw address to audit details under envelope
// encryption. Without an encryption manager only the hash is recorded.
func (g *LoginAttemptGuard) withEncryptedEmail(ctx context.Context, normalized string, details map[string]string) map[string]string {
	if g.crypto == nil {
		return details
	}

	envelope, err := g.crypto.EncryptField(ctx, normalized)
	if err != nil {
		g.logger.Warn("Failed to encrypt email for audit details", zap.Error(err))
		return details
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return details
	}

	details["email_encrypted"] = string(payload)
	return details
}
