package models

import "time"

// SensitiveOperation is a flagged high-impact action recorded for heightened
// audit visibility. The approval workflow itself lives outside this service.
type SensitiveOperation struct {
	ID               string            `db:"id"`
	OperationType    string            `db:"operation_type"`
	OperationDetails map[string]string `db:"operation_details"`
	RequiresApproval bool              `db:"requires_approval"`
	CreatedAt        time.Time         `db:"created_at"`
}
