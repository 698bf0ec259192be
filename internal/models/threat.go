package models

import "time"

// ThreatType identifies the category of a detected threat
type ThreatType string

const (
	ThreatSQLInjection       ThreatType = "sql_injection"
	ThreatXSSAttempt         ThreatType = "xss_attempt"
	ThreatBruteForce         ThreatType = "brute_force"
	ThreatUnauthorizedAccess ThreatType = "unauthorized_access"
	ThreatDataBreach         ThreatType = "data_breach"
)

// ThreatReport is the transient output of the detector and rate limiter. It is
// never stored as-is: every report becomes a SecurityEvent, and critical ones
// are additionally persisted as a ThreatRecord.
type ThreatReport struct {
	Type       ThreatType        `json:"type"`
	Severity   RiskLevel         `json:"severity"`
	Source     string            `json:"source"`
	Details    map[string]string `json:"details,omitempty"`
	DetectedAt time.Time         `json:"detected_at"`
}

// ThreatRecord is the persisted form of a critical ThreatReport
type ThreatRecord struct {
	ThreatBucket int               `db:"threat_bucket"`
	ThreatDate   string            `db:"threat_date"`
	ThreatID     string            `db:"threat_id"`
	ThreatType   string            `db:"threat_type"`
	Severity     string            `db:"severity"`
	Source       string            `db:"source"`
	Details      map[string]string `db:"details"`
	DetectedAt   time.Time         `db:"detected_at"`
}
