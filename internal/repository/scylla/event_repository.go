package scylla

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"secmon-service/internal/models"
)

// EventRepository is the system of record for audit events
type EventRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewEventRepository(client *ScyllaClient, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		client: client,
		logger: logger,
	}
}

func (r *EventRepository) InsertEvent(ctx context.Context, event *models.SecurityEvent) error {
	err := r.client.Prepared.InsertEvent.Bind(
		event.EventBucket, event.EventDate, event.EventID, event.OccurredAt,
		event.Action, event.ResourceType, event.ResourceID, event.UserID,
		event.Success, string(event.RiskLevel), event.IPAddress,
		event.Details, event.Context,
	).WithContext(ctx).Exec()
	if err != nil {
		r.logger.Error("Failed to insert security event",
			zap.String("action", event.Action),
			zap.Error(err))
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}
