package dto

import (
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// RegisterUnitRequest payload.
type RegisterUnitRequest struct {
	CallSign  string          `json:"call_sign"`
	Type      domain.UnitType `json:"type"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Address   string          `json:"address"`
	Capacity  int             `json:"capacity"`
}

// UnitStatusRequest payload.
type UnitStatusRequest struct {
	Status domain.ReadinessState `json:"status"`
}

// UnitResponse describes one fleet unit.
type UnitResponse struct {
	ID               string                `json:"id"`
	CallSign         string                `json:"call_sign"`
	Type             domain.UnitType       `json:"type"`
	Location         LocationResponse      `json:"location"`
	Readiness        domain.ReadinessState `json:"readiness"`
	Capacity         int                   `json:"capacity"`
	ActiveIncidentID *string               `json:"active_incident_id,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}
