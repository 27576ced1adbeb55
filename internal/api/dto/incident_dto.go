package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// SubmitReportRequest payload.
type SubmitReportRequest struct {
	Description   string   `json:"description"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Address       string   `json:"address"`
	Hints         []string `json:"hints"`
	CallerContact *string  `json:"caller_contact"`
}

// ReprioritizeRequest payload.
type ReprioritizeRequest struct {
	Severity int `json:"severity"`
}

// LocationResponse is a coordinate pair with an optional address.
type LocationResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// IncidentSummary response.
type IncidentSummary struct {
	ID          string                  `json:"id"`
	ExternalKey string                  `json:"external_key"`
	Category    domain.IncidentCategory `json:"category"`
	Severity    int                     `json:"severity"`
	Band        domain.PriorityBand     `json:"band"`
	Status      domain.IncidentStatus   `json:"status"`
	Confidence  float64                 `json:"confidence"`
	Degraded    bool                    `json:"degraded"`
	Location    LocationResponse        `json:"location"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// IncidentDetailResponse provides full incident info.
type IncidentDetailResponse struct {
	ID            string                    `json:"id"`
	ExternalKey   string                    `json:"external_key"`
	Category      domain.IncidentCategory   `json:"category"`
	Severity      int                       `json:"severity"`
	Band          domain.PriorityBand       `json:"band"`
	Status        domain.IncidentStatus     `json:"status"`
	Confidence    float64                   `json:"confidence"`
	Degraded      bool                      `json:"degraded"`
	Description   string                    `json:"description"`
	Indicators    []string                  `json:"indicators"`
	Location      LocationResponse          `json:"location"`
	CallerContact *string                   `json:"caller_contact,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	QueuedAt      *time.Time                `json:"queued_at,omitempty"`
	DispatchedAt  *time.Time                `json:"dispatched_at,omitempty"`
	ClosedAt      *time.Time                `json:"closed_at,omitempty"`
	Allocation    *AllocationResponse       `json:"allocation,omitempty"`
	Dispatch      *DispatchResponse         `json:"dispatch,omitempty"`
	HeldUnits     []UnitResponse            `json:"held_units"`
	History       []IncidentHistoryResponse `json:"history"`
}

// AssignmentResponse is one unit within an allocation.
type AssignmentResponse struct {
	UnitID            string          `json:"unit_id"`
	CallSign          string          `json:"call_sign"`
	UnitType          domain.UnitType `json:"unit_type"`
	DistanceMeters    float64         `json:"distance_meters"`
	TravelTimeSeconds int64           `json:"travel_time_seconds"`
}

// AllocationResponse describes a resource commitment.
type AllocationResponse struct {
	ID               string               `json:"id"`
	RequiredCapacity int                  `json:"required_capacity"`
	AssignedCapacity int                  `json:"assigned_capacity"`
	Deficit          int                  `json:"deficit"`
	Partial          bool                 `json:"partial"`
	PersonnelCount   int                  `json:"personnel_count"`
	EstimatedCost    decimal.Decimal      `json:"estimated_cost"`
	Assignments      []AssignmentResponse `json:"assignments"`
	CreatedAt        time.Time            `json:"created_at"`
	ReleasedAt       *time.Time           `json:"released_at,omitempty"`
}

// InstructionResponse is one unit's dispatch order.
type InstructionResponse struct {
	UnitID   string `json:"unit_id"`
	CallSign string `json:"call_sign"`
	Text     string `json:"text"`
}

// DispatchResponse describes an issued dispatch ticket.
type DispatchResponse struct {
	ID           string                `json:"id"`
	ExternalKey  string                `json:"external_key"`
	AllocationID string                `json:"allocation_id"`
	Instructions []InstructionResponse `json:"instructions"`
	DispatchedAt time.Time             `json:"dispatched_at"`
}

// IncidentHistoryResponse is one audit trail entry.
type IncidentHistoryResponse struct {
	ID         string            `json:"id"`
	ChangeType domain.ChangeType `json:"change_type"`
	Actor      string            `json:"actor"`
	OldValue   map[string]any    `json:"old_value,omitempty"`
	NewValue   map[string]any    `json:"new_value,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// QueueEntryResponse is one triage queue position.
type QueueEntryResponse struct {
	Position       int                 `json:"position"`
	IncidentID     string              `json:"incident_id"`
	Severity       int                 `json:"severity"`
	Band           domain.PriorityBand `json:"band"`
	EnqueuedAt     time.Time           `json:"enqueued_at"`
	WaitingSeconds int64               `json:"waiting_seconds"`
}
