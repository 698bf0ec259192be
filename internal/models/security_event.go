package models

import (
	"time"
)

// RiskLevel classifies how dangerous a recorded action is
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// ParseRiskLevel converts a string to a RiskLevel, defaulting to low
func ParseRiskLevel(s string) RiskLevel {
	switch s {
	case "critical":
		return RiskCritical
	case "high":
		return RiskHigh
	case "medium":
		return RiskMedium
	default:
		return RiskLow
	}
}

// Audit action tags. Kept as free strings in storage; these constants cover the
// actions the core itself emits.
const (
	ActionLoginAttempt           = "login_attempt"
	ActionRateLimitTriggered     = "rate_limit_triggered"
	ActionThreatDetected         = "threat_detected"
	ActionUnauthorizedAccess     = "unauthorized_access_attempt"
	ActionSensitiveOperation     = "sensitive_operation"
	ActionSessionCreated         = "session_created"
	ActionSessionInvalidated     = "session_invalidated"
	ActionAllSessionsInvalidated = "all_sessions_invalidated"
	ActionExpiredSessionsCleanup = "expired_sessions_cleanup"
)

// SecurityEvent is one immutable audit record. It is written once by the audit
// sink and never mutated afterwards.
type SecurityEvent struct {
	EventBucket  int               `db:"event_bucket" json:"-"`
	EventDate    string            `db:"event_date" json:"event_date"`
	EventID      string            `db:"event_id" json:"event_id"`
	OccurredAt   time.Time         `db:"occurred_at" json:"occurred_at"`
	Action       string            `db:"action" json:"action"`
	ResourceType string            `db:"resource_type" json:"resource_type"`
	ResourceID   string            `db:"resource_id" json:"resource_id,omitempty"`
	UserID       string            `db:"user_id" json:"user_id,omitempty"`
	Success      bool              `db:"success" json:"success"`
	RiskLevel    RiskLevel         `db:"risk_level" json:"risk_level"`
	IPAddress    string            `db:"ip_address" json:"ip_address,omitempty"`
	Details      map[string]string `db:"details" json:"details,omitempty"`
	Context      map[string]string `db:"context" json:"context,omitempty"`
}
