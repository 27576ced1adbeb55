package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Assignment binds one reserved unit to an incident.
type Assignment struct {
	UnitID         string
	CallSign       string
	UnitType       UnitType
	DistanceMeters float64
	TravelTime     time.Duration
}

// Allocation is the set of units reserved for one incident. Deficit is the
// capacity shortfall when the pool could not fully cover the requirement.
type Allocation struct {
	ID               string
	IncidentID       string
	Assignments      []Assignment
	RequiredCapacity int
	AssignedCapacity int
	Deficit          int
	Partial          bool
	PersonnelCount   int
	EstimatedCost    decimal.Decimal
	CreatedAt        time.Time
	ReleasedAt       *time.Time
}

// UnitIDs lists the reserved unit IDs in assignment order.
func (a *Allocation) UnitIDs() []string {
	ids := make([]string, 0, len(a.Assignments))
	for _, assignment := range a.Assignments {
		ids = append(ids, assignment.UnitID)
	}
	return ids
}

// LongestTravelTime returns the slowest assignment's travel time, which bounds
// when the full response is on scene.
func (a *Allocation) LongestTravelTime() time.Duration {
	var longest time.Duration
	for _, assignment := range a.Assignments {
		if assignment.TravelTime > longest {
			longest = assignment.TravelTime
		}
	}
	return longest
}

// DispatchInstruction is the routed order handed to one unit.
type DispatchInstruction struct {
	UnitID   string
	CallSign string
	Text     string
}

// DispatchTicket records the dispatch of an allocation's units.
type DispatchTicket struct {
	ID           string
	ExternalKey  string
	IncidentID   string
	AllocationID string
	Instructions []DispatchInstruction
	DispatchedAt time.Time
}
