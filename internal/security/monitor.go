package security

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"secmon-service/internal/audit"
	"secmon-service/internal/bucketing"
	"secmon-service/internal/config"
	"secmon-service/internal/models"
	"secmon-service/internal/util"
)

// ThreatStore persists critical threats and flagged sensitive operations
type ThreatStore interface {
	InsertThreat(ctx context.Context, record *models.ThreatRecord) error
	InsertSensitiveOperation(ctx context.Context, op *models.SensitiveOperation) error
}

// EmergencyHandler is invoked synchronously for every critical threat. The
// default handler only logs loudly; deployments plug in paging or automated
// containment here.
type EmergencyHandler func(ctx context.Context, report models.ThreatReport)

// SecurityMonitor is the facade the transport layer talks to. It composes the
// detector, limiter, and login guard, and turns their findings into audit
// events and persisted threat records.
type SecurityMonitor struct {
	detector  *ThreatDetector
	limiter   *RateLimiter
	guard     *LoginAttemptGuard
	threats   ThreatStore
	audit     audit.Recorder
	bucketing *bucketing.BucketingManager
	logger    *zap.Logger
	emergency EmergencyHandler

	maxRequests int
	window      time.Duration
}

func NewSecurityMonitor(
	cfg *config.Config,
	detector *ThreatDetector,
	limiter *RateLimiter,
	guard *LoginAttemptGuard,
	threats ThreatStore,
	auditSink audit.Recorder,
	bucketingMgr *bucketing.BucketingManager,
	logger *zap.Logger,
) *SecurityMonitor {
	m := &SecurityMonitor{
		detector:    detector,
		limiter:     limiter,
		guard:       guard,
		threats:     threats,
		audit:       auditSink,
		bucketing:   bucketingMgr,
		logger:      logger,
		maxRequests: cfg.Security.RateLimitMaxRequests,
		window:      cfg.Security.RateLimitWindow,
	}
	m.emergency = m.defaultEmergencyHandler
	return m
}

// SetEmergencyHandler replaces the critical-threat hook. A nil handler
// restores the default logging handler.
func (m *SecurityMonitor) SetEmergencyHandler(handler EmergencyHandler) {
	if handler == nil {
		handler = m.defaultEmergencyHandler
	}
	m.emergency = handler
}

func (m *SecurityMonitor) defaultEmergencyHandler(_ context.Context, report models.ThreatReport) {
	m.logger.Error("CRITICAL THREAT DETECTED",
		zap.String("threat_type", string(report.Type)),
		zap.String("severity", string(report.Severity)),
		zap.String("source", report.Source),
		zap.Any("details", report.Details))
}

// MonitorInput scans free-form input and reports every threat found. The scan
// is advisory: the request proceeds regardless, and the caller decides what to
// do with the reports.
func (m *SecurityMonitor) MonitorInput(ctx context.Context, input, source string) []models.ThreatReport {
	reports := m.detector.Scan(input, source)
	for _, report := range reports {
		m.handleThreat(ctx, report)
	}
	return reports
}

// CheckRateLimit counts one request for the identifier and returns whether it
// is within budget. A denial is itself a security signal and is recorded as a
// brute-force threat.
func (m *SecurityMonitor) CheckRateLimit(ctx context.Context, identifier string) bool {
	if m.limiter.Allow(ctx, identifier, m.maxRequests, m.window) {
		return true
	}

	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionRateLimitTriggered,
		ResourceType: "rate_limit",
		ResourceID:   identifier,
		Success:      false,
		RiskLevel:    models.RiskHigh,
		Details: map[string]string{
			"max_requests": strconv.Itoa(m.maxRequests),
			"window":       m.window.String(),
		},
	})

	m.handleThreat(ctx, models.ThreatReport{
		Type:     models.ThreatBruteForce,
		Severity: models.RiskHigh,
		Source:   identifier,
		Details: map[string]string{
			"max_requests": strconv.Itoa(m.maxRequests),
			"window":       m.window.String(),
		},
		DetectedAt: time.Now().UTC(),
	})

	return false
}

// MonitorLoginAttempt records a login outcome and returns whether it was
// accepted under the lockout policy
func (m *SecurityMonitor) MonitorLoginAttempt(ctx context.Context, email string, success bool, ip, userAgent string) bool {
	return m.guard.CheckAndRecord(ctx, email, success, ip, userAgent)
}

// MonitorFileAccess records denied file access. Allowed access is not audited;
// only the refusals are interesting.
func (m *SecurityMonitor) MonitorFileAccess(ctx context.Context, userID, filePath string, allowed bool, ip string) {
	if allowed {
		return
	}

	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionUnauthorizedAccess,
		ResourceType: "file",
		ResourceID:   util.Truncate(filePath, 256),
		UserID:       userID,
		Success:      false,
		RiskLevel:    models.RiskMedium,
		IPAddress:    ip,
		Details: map[string]string{
			"file_path": util.Truncate(filePath, 256),
		},
	})
}

// LogSensitiveOperation persists a flagged high-impact operation and emits a
// high-risk audit event for it
func (m *SecurityMonitor) LogSensitiveOperation(ctx context.Context, userID, operationType string, details map[string]string, requiresApproval bool) error {
	op := &models.SensitiveOperation{
		ID:               uuid.New().String(),
		OperationType:    operationType,
		OperationDetails: details,
		RequiresApproval: requiresApproval,
		CreatedAt:        time.Now().UTC(),
	}

	if err := m.threats.InsertSensitiveOperation(ctx, op); err != nil {
		return err
	}

	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionSensitiveOperation,
		ResourceType: "operation",
		ResourceID:   op.ID,
		UserID:       userID,
		Success:      true,
		RiskLevel:    models.RiskHigh,
		Details:      details,
	})

	return nil
}

// handleThreat records the threat as an audit event, persists critical ones,
// and fires the emergency hook for critical severity
func (m *SecurityMonitor) handleThreat(ctx context.Context, report models.ThreatReport) {
	m.audit.Record(&models.SecurityEvent{
		Action:       models.ActionThreatDetected,
		ResourceType: "threat",
		ResourceID:   string(report.Type),
		Success:      false,
		RiskLevel:    report.Severity,
		IPAddress:    "",
		Details:      report.Details,
		Context: map[string]string{
			"source": report.Source,
		},
	})

	if report.Severity != models.RiskCritical {
		return
	}

	record := &models.ThreatRecord{
		ThreatBucket: m.bucketing.GetEventBucket(report.Source + string(report.Type)),
		ThreatDate:   m.bucketing.GetDateBucket(report.DetectedAt),
		ThreatID:     uuid.New().String(),
		ThreatType:   string(report.Type),
		Severity:     string(report.Severity),
		Source:       report.Source,
		Details:      report.Details,
		DetectedAt:   report.DetectedAt,
	}

	if err := m.threats.InsertThreat(ctx, record); err != nil {
		m.logger.Error("Failed to persist critical threat record",
			zap.String("threat_type", record.ThreatType),
			zap.Error(err))
	}

	m.emergency(ctx, report)
}
