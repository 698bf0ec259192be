package models

import "time"

// LoginAttempt is one persisted authentication attempt. Emails are stored as
// peppered lookup hashes; the raw address only travels through audit details
// under envelope encryption.
type LoginAttempt struct {
	AttemptBucket int        `db:"attempt_bucket"`
	AttemptID     string     `db:"attempt_id"`
	EmailHash     string     `db:"email_hash"`
	IPAddress     string     `db:"ip_address"`
	Success       bool       `db:"success"`
	BlockedUntil  *time.Time `db:"blocked_until"`
	UserAgent     string     `db:"user_agent"`
	AttemptedAt   time.Time  `db:"attempted_at"`
}

// Blocked reports whether this record carries an unexpired lockout
func (a *LoginAttempt) Blocked(now time.Time) bool {
	return a.BlockedUntil != nil && now.Before(*a.BlockedUntil)
}
