package models

import "time"

// Session is the persisted session record. SessionToken is globally unique and
// ExpiresAt is fixed at creation, never extended. IsActive transitions
// true to false exactly once, via revocation or the expiry sweep.
type Session struct {
	ID                string     `db:"id"`
	UserID            string     `db:"user_id"`
	SessionToken      string     `db:"session_token"`
	IPAddress         string     `db:"ip_address"`
	UserAgent         string     `db:"user_agent"`
	IsActive          bool       `db:"is_active"`
	CreatedAt         time.Time  `db:"created_at"`
	LastActivity      time.Time  `db:"last_activity"`
	ExpiresAt         time.Time  `db:"expires_at"`
	InvalidatedAt     *time.Time `db:"invalidated_at"`
	InvalidatedReason string     `db:"invalidated_reason"`
}

// Expired reports whether the session is past its fixed expiry at the given instant
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
