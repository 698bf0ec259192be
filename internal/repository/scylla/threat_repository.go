package scylla

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"secmon-service/internal/models"
)

// ThreatRepository persists critical threat records and sensitive operations
type ThreatRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewThreatRepository(client *ScyllaClient, logger *zap.Logger) *ThreatRepository {
	return &ThreatRepository{
		client: client,
		logger: logger,
	}
}

func (r *ThreatRepository) InsertThreat(ctx context.Context, record *models.ThreatRecord) error {
	err := r.client.Prepared.InsertThreat.Bind(
		record.ThreatBucket, record.ThreatDate, record.ThreatID,
		record.ThreatType, record.Severity, record.Source,
		record.Details, record.DetectedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		r.logger.Error("Failed to insert threat record",
			zap.String("threat_type", record.ThreatType),
			zap.Error(err))
		return fmt.Errorf("failed to insert threat record: %w", err)
	}

	return nil
}

func (r *ThreatRepository) InsertSensitiveOperation(ctx context.Context, op *models.SensitiveOperation) error {
	err := r.client.Prepared.InsertSensitiveOp.Bind(
		op.ID, op.OperationType, op.OperationDetails,
		op.RequiresApproval, op.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		r.logger.Error("Failed to insert sensitive operation",
			zap.String("operation_type", op.OperationType),
			zap.Error(err))
		return fmt.Errorf("failed to insert sensitive operation: %w", err)
	}

	return nil
}
