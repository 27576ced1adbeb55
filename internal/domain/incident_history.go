package domain

import "time"

// ChangeType enumerates auditable incident mutations.
type ChangeType string

const (
	ChangeStatus     ChangeType = "status_change"
	ChangeSeverity   ChangeType = "severity_change"
	ChangeAllocation ChangeType = "allocation_change"
)

// IncidentHistory is one audit entry for an incident mutation.
type IncidentHistory struct {
	ID         string
	IncidentID string
	ChangeType ChangeType
	Actor      string
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
