package events

import (
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIncidentReceived      EventType = "incident_received"
	EventIncidentQueued        EventType = "incident_queued"
	EventIncidentReprioritized EventType = "incident_reprioritized"
	EventIncidentAllocated     EventType = "incident_allocated"
	EventIncidentDispatched    EventType = "incident_dispatched"
	EventIncidentResolved      EventType = "incident_resolved"
	EventIncidentCancelled     EventType = "incident_cancelled"
	EventUnitStatusChanged     EventType = "unit_status_changed"
)

// Event represents a domain event emitted by services. IncidentID is empty
// for fleet events not tied to an incident.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	IncidentID string      `json:"incident_id,omitempty"`
	Actor      string      `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// IncidentReceivedPayload payload.
type IncidentReceivedPayload struct {
	Category   domain.IncidentCategory `json:"category"`
	Severity   int                     `json:"severity"`
	Band       domain.PriorityBand     `json:"band"`
	Degraded   bool                    `json:"degraded,omitempty"`
	Confidence float64                 `json:"confidence"`
}

// IncidentQueuedPayload payload.
type IncidentQueuedPayload struct {
	Severity   int `json:"severity"`
	QueueDepth int `json:"queue_depth"`
}

// IncidentReprioritizedPayload payload.
type IncidentReprioritizedPayload struct {
	OldSeverity int `json:"old_severity"`
	NewSeverity int `json:"new_severity"`
}

// IncidentAllocatedPayload payload.
type IncidentAllocatedPayload struct {
	AllocationID string   `json:"allocation_id"`
	UnitIDs      []string `json:"unit_ids"`
	Partial      bool     `json:"partial"`
	Deficit      int      `json:"deficit,omitempty"`
}

// IncidentDispatchedPayload payload.
type IncidentDispatchedPayload struct {
	DispatchID string   `json:"dispatch_id"`
	UnitIDs    []string `json:"unit_ids"`
	ETASeconds int64    `json:"eta_seconds"`
}

// IncidentResolvedPayload payload.
type IncidentResolvedPayload struct {
	ReleasedUnitIDs []string `json:"released_unit_ids"`
}

// IncidentCancelledPayload payload.
type IncidentCancelledPayload struct {
	PreviousStatus  domain.IncidentStatus `json:"previous_status"`
	ReleasedUnitIDs []string              `json:"released_unit_ids,omitempty"`
}

// UnitStatusChangedPayload payload.
type UnitStatusChangedPayload struct {
	UnitID   string                `json:"unit_id"`
	CallSign string                `json:"call_sign"`
	OldState domain.ReadinessState `json:"old_state"`
	NewState domain.ReadinessState `json:"new_state"`
}
