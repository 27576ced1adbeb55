package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

// Actor labels recorded on events and audit entries.
const (
	actorOperator    = "operator"
	actorCoordinator = "coordinator"
	actorSystem      = "system"
)

func generateIncidentKey() string {
	return "INC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func generateDispatchKey() string {
	return "DSP-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

func recordStatusChange(ctx context.Context, history repository.IncidentHistoryRepository, actor, incidentID string, oldStatus, newStatus domain.IncidentStatus, comment string) error {
	if history == nil {
		return nil
	}
	entry := &domain.IncidentHistory{
		IncidentID: incidentID,
		ChangeType: domain.ChangeStatus,
		Actor:      actor,
		OldValue: map[string]any{
			"status": oldStatus,
		},
		NewValue: map[string]any{
			"status":  newStatus,
			"comment": comment,
		},
	}
	return history.Create(ctx, entry)
}

func recordSeverityChange(ctx context.Context, history repository.IncidentHistoryRepository, actor, incidentID string, oldSeverity, newSeverity int) error {
	if history == nil {
		return nil
	}
	entry := &domain.IncidentHistory{
		IncidentID: incidentID,
		ChangeType: domain.ChangeSeverity,
		Actor:      actor,
		OldValue: map[string]any{
			"severity": oldSeverity,
		},
		NewValue: map[string]any{
			"severity": newSeverity,
		},
	}
	return history.Create(ctx, entry)
}

func recordAllocationChange(ctx context.Context, history repository.IncidentHistoryRepository, actor, incidentID, allocationID string, unitIDs []string, detail string) error {
	if history == nil {
		return nil
	}
	entry := &domain.IncidentHistory{
		IncidentID: incidentID,
		ChangeType: domain.ChangeAllocation,
		Actor:      actor,
		NewValue: map[string]any{
			"allocation_id": allocationID,
			"unit_ids":      unitIDs,
			"detail":        detail,
		},
	}
	return history.Create(ctx, entry)
}
