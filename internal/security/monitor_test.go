package security

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"secmon-service/internal/bucketing"
	"secmon-service/internal/config"
	"secmon-service/internal/models"
)

type fakeThreatStore struct {
	mu      sync.Mutex
	threats []*models.ThreatRecord
	ops     []*models.SensitiveOperation
}

func (f *fakeThreatStore) InsertThreat(_ context.Context, record *models.ThreatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threats = append(f.threats, record)
	return nil
}

func (f *fakeThreatStore) InsertSensitiveOperation(_ context.Context, op *models.SensitiveOperation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	return nil
}

func newTestMonitor(t *testing.T, cfg *config.Config, threats *fakeThreatStore, recorder *fakeRecorder) *SecurityMonitor {
	t.Helper()
	guard := newTestGuard(t, &fakeAttemptStore{}, recorder)
	return NewSecurityMonitor(
		cfg,
		NewThreatDetector(),
		NewRateLimiter(nil),
		guard,
		threats,
		recorder,
		bucketing.NewBucketingManager(cfg),
		zap.NewNop(),
	)
}

func TestMonitorInputPersistsCriticalThreat(t *testing.T) {
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, testConfig(), threats, recorder)

	var fired []models.ThreatReport
	m.SetEmergencyHandler(func(_ context.Context, report models.ThreatReport) {
		fired = append(fired, report)
	})

	reports := m.MonitorInput(context.Background(), "1' OR '1'='1", "login_form")
	if len(reports) == 0 {
		t.Fatal("expected threat reports")
	}

	if len(threats.threats) == 0 {
		t.Error("critical threat not persisted")
	}
	if len(fired) == 0 {
		t.Error("emergency handler not invoked for critical threat")
	}
	if events := recorder.byAction(models.ActionThreatDetected); len(events) != len(reports) {
		t.Errorf("threat_detected events = %d, want %d", len(events), len(reports))
	}
}

func TestMonitorInputHighSeverityNotPersisted(t *testing.T) {
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, testConfig(), threats, recorder)

	fired := false
	m.SetEmergencyHandler(func(_ context.Context, _ models.ThreatReport) {
		fired = true
	})

	reports := m.MonitorInput(context.Background(), "<script>alert(1)</script>", "comment")
	if len(reports) == 0 {
		t.Fatal("expected threat reports")
	}

	// High severity is audited but not persisted as a threat record
	if len(threats.threats) != 0 {
		t.Errorf("threat records = %d, want 0", len(threats.threats))
	}
	if fired {
		t.Error("emergency handler fired for non-critical threat")
	}
}

func TestMonitorInputAdvisory(t *testing.T) {
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, testConfig(), threats, recorder)

	if reports := m.MonitorInput(context.Background(), "plain text", "form"); len(reports) != 0 {
		t.Errorf("clean input reported %d threats", len(reports))
	}
}

func TestCheckRateLimitRecordsDenial(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RateLimitMaxRequests = 2
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, cfg, threats, recorder)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if !m.CheckRateLimit(ctx, "client-1") {
			t.Fatalf("request %d denied within budget", i+1)
		}
	}
	if m.CheckRateLimit(ctx, "client-1") {
		t.Fatal("request over budget allowed")
	}

	if events := recorder.byAction(models.ActionRateLimitTriggered); len(events) != 1 {
		t.Errorf("rate_limit_triggered events = %d, want 1", len(events))
	}
	if events := recorder.byAction(models.ActionThreatDetected); len(events) != 1 {
		t.Errorf("threat_detected events = %d, want 1", len(events))
	}
}

func TestMonitorFileAccess(t *testing.T) {
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, testConfig(), threats, recorder)
	ctx := context.Background()

	m.MonitorFileAccess(ctx, "user-1", "/etc/passwd", true, "203.0.113.7")
	if events := recorder.byAction(models.ActionUnauthorizedAccess); len(events) != 0 {
		t.Errorf("allowed access recorded %d events, want 0", len(events))
	}

	m.MonitorFileAccess(ctx, "user-1", "/etc/passwd", false, "203.0.113.7")
	events := recorder.byAction(models.ActionUnauthorizedAccess)
	if len(events) != 1 {
		t.Fatalf("denied access recorded %d events, want 1", len(events))
	}
	if events[0].RiskLevel != models.RiskMedium {
		t.Errorf("event risk = %s, want medium", events[0].RiskLevel)
	}
	if events[0].Success {
		t.Error("denied access recorded as success")
	}
}

func TestLogSensitiveOperation(t *testing.T) {
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, testConfig(), threats, recorder)

	err := m.LogSensitiveOperation(context.Background(), "admin-1", "bulk_export",
		map[string]string{"rows": "100000"}, true)
	if err != nil {
		t.Fatalf("LogSensitiveOperation: %v", err)
	}

	if len(threats.ops) != 1 {
		t.Fatalf("persisted %d operations, want 1", len(threats.ops))
	}
	op := threats.ops[0]
	if op.OperationType != "bulk_export" || !op.RequiresApproval {
		t.Errorf("persisted op = %+v", op)
	}
	if op.ID == "" || op.CreatedAt.IsZero() {
		t.Error("operation missing id or timestamp")
	}

	events := recorder.byAction(models.ActionSensitiveOperation)
	if len(events) != 1 {
		t.Fatalf("sensitive_operation events = %d, want 1", len(events))
	}
	if events[0].RiskLevel != models.RiskHigh {
		t.Errorf("event risk = %s, want high", events[0].RiskLevel)
	}
}

func TestDefaultEmergencyHandlerRestored(t *testing.T) {
	threats := &fakeThreatStore{}
	recorder := &fakeRecorder{}
	m := newTestMonitor(t, testConfig(), threats, recorder)

	m.SetEmergencyHandler(nil)

	// Must not panic with the default handler in place
	m.MonitorInput(context.Background(), "DROP TABLE users", "admin_form")

	if len(threats.threats) == 0 {
		t.Error("critical threat not persisted")
	}
}
