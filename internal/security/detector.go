package security

import (
	"regexp"
	"time"

	"secmon-service/internal/models"
	"secmon-service/internal/util"
)

// matchedInputLimit caps how much of the offending input is carried in a
// threat report so audit rows stay bounded
const matchedInputLimit = 100

type threatRule struct {
	pattern    *regexp.Regexp
	threatType models.ThreatType
	severity   models.RiskLevel
}

// ThreatDetector scans free-form input for injection and scripting payloads.
// Detection is advisory; callers decide whether to block the request.
type ThreatDetector struct {
	rules []threatRule
}

func NewThreatDetector() *ThreatDetector {
	return &ThreatDetector{
		rules: []threatRule{
			// SQL injection
			{regexp.MustCompile(`(?i)union\s+(all\s+)?select`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`(?i)select\s+.+\s+from\s+.+\s+where`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`(?i)insert\s+into\s+\w+`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`(?i)drop\s+table\s+\w+`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`(?i)delete\s+from\s+\w+`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`(?i)'\s*or\s*'[^']*'\s*=\s*'`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`--\s*$`), models.ThreatSQLInjection, models.RiskCritical},
			{regexp.MustCompile(`(?i)exec(ute)?\s*\(`), models.ThreatSQLInjection, models.RiskCritical},

			// Cross-site scripting
			{regexp.MustCompile(`(?i)<script[\s>]`), models.ThreatXSSAttempt, models.RiskHigh},
			{regexp.MustCompile(`(?i)javascript\s*:`), models.ThreatXSSAttempt, models.RiskHigh},
			{regexp.MustCompile(`(?i)\bon\w+\s*=`), models.ThreatXSSAttempt, models.RiskHigh},
			{regexp.MustCompile(`(?i)<(iframe|object|embed)[\s>]`), models.ThreatXSSAttempt, models.RiskHigh},
			{regexp.MustCompile(`(?i)\beval\s*\(`), models.ThreatXSSAttempt, models.RiskHigh},
			{regexp.MustCompile(`(?i)document\.cookie`), models.ThreatXSSAttempt, models.RiskHigh},
		},
	}
}

// Scan returns one report per rule whose pattern matches the input. The input
// sample in each report is truncated to matchedInputLimit characters.
func (d *ThreatDetector) Scan(input, source string) []models.ThreatReport {
	if input == "" {
		return nil
	}

	var reports []models.ThreatReport
	now := time.Now().UTC()

	for _, rule := range d.rules {
		if !rule.pattern.MatchString(input) {
			continue
		}
		reports = append(reports, models.ThreatReport{
			Type:     rule.threatType,
			Severity: rule.severity,
			Source:   source,
			Details: map[string]string{
				"matched_input": util.Truncate(input, matchedInputLimit),
				"pattern":       rule.pattern.String(),
			},
			DetectedAt: now,
		})
	}

	return reports
}
