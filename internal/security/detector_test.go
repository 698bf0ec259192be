package security

import (
	"strings"
	"testing"

	"secmon-service/internal/models"
)

func TestScanDetectsSQLInjection(t *testing.T) {
	d := NewThreatDetector()

	inputs := []string{
		"1 UNION SELECT username, password FROM users",
		"SELECT id FROM accounts WHERE balance > 0",
		"INSERT INTO admins VALUES ('x')",
		"DROP TABLE customers",
		"DELETE FROM orders",
		"' OR '1'='1",
		"admin'--",
		"EXEC(@cmd)",
	}

	for _, input := range inputs {
		reports := d.Scan(input, "login_form")
		if len(reports) == 0 {
			t.Errorf("Scan(%q) found no threats", input)
			continue
		}
		found := false
		for _, r := range reports {
			if r.Type == models.ThreatSQLInjection {
				found = true
				if r.Severity != models.RiskCritical {
					t.Errorf("Scan(%q) severity = %s, want critical", input, r.Severity)
				}
				if r.Source != "login_form" {
					t.Errorf("Scan(%q) source = %q", input, r.Source)
				}
			}
		}
		if !found {
			t.Errorf("Scan(%q) did not report sql_injection", input)
		}
	}
}

func TestScanDetectsXSS(t *testing.T) {
	d := NewThreatDetector()

	inputs := []string{
		"<script>alert(1)</script>",
		"javascript:void(0)",
		`<img src=x onerror=alert(1)>`,
		"<iframe src='http://evil.example'>",
		"eval(payload)",
		"document.cookie",
	}

	for _, input := range inputs {
		reports := d.Scan(input, "comment")
		found := false
		for _, r := range reports {
			if r.Type == models.ThreatXSSAttempt {
				found = true
				if r.Severity != models.RiskHigh {
					t.Errorf("Scan(%q) severity = %s, want high", input, r.Severity)
				}
			}
		}
		if !found {
			t.Errorf("Scan(%q) did not report xss_attempt", input)
		}
	}
}

func TestScanCleanInput(t *testing.T) {
	d := NewThreatDetector()

	inputs := []string{
		"",
		"hello world",
		"jane.doe@example.com",
		"I'd like to update my order",
	}

	for _, input := range inputs {
		if reports := d.Scan(input, "form"); len(reports) != 0 {
			t.Errorf("Scan(%q) = %d threats, want 0", input, len(reports))
		}
	}
}

func TestScanTruncatesMatchedInput(t *testing.T) {
	d := NewThreatDetector()

	input := "<script>" + strings.Repeat("a", 500)
	reports := d.Scan(input, "form")
	if len(reports) == 0 {
		t.Fatal("expected a threat report")
	}
	for _, r := range reports {
		if got := len(r.Details["matched_input"]); got > matchedInputLimit {
			t.Errorf("matched_input length = %d, want <= %d", got, matchedInputLimit)
		}
	}
}

func TestScanReportsMultipleThreats(t *testing.T) {
	d := NewThreatDetector()

	input := "<script>document.cookie</script>' OR '1'='1"
	reports := d.Scan(input, "form")

	var sqli, xss bool
	for _, r := range reports {
		switch r.Type {
		case models.ThreatSQLInjection:
			sqli = true
		case models.ThreatXSSAttempt:
			xss = true
		}
	}
	if !sqli || !xss {
		t.Errorf("Scan found sqli=%v xss=%v, want both", sqli, xss)
	}
}
