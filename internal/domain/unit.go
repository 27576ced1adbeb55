package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitType enumerates the kinds of response units the fleet tracks.
type UnitType string

const (
	UnitTypeAmbulance   UnitType = "ambulance"
	UnitTypeFireEngine  UnitType = "fire_engine"
	UnitTypeRescueSquad UnitType = "rescue_squad"
	UnitTypeSupport     UnitType = "support"
)

// ReadinessState enumerates operational states for a response unit.
type ReadinessState string

const (
	ReadinessAvailable    ReadinessState = "available"
	ReadinessEnRoute      ReadinessState = "en_route"
	ReadinessOnScene      ReadinessState = "on_scene"
	ReadinessOutOfService ReadinessState = "out_of_service"
)

// ResourceUnit is one dispatchable vehicle or crew. Capacity is the unit's
// contribution toward an incident's required capacity (patient slots or
// equivalent).
type ResourceUnit struct {
	ID               string
	CallSign         string
	Type             UnitType
	Location         Location
	Readiness        ReadinessState
	Capacity         int
	ActiveIncidentID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Available reports whether the unit can be reserved for a new incident.
func (u *ResourceUnit) Available() bool {
	return u.Readiness == ReadinessAvailable && u.ActiveIncidentID == nil
}

// UnitProfile carries the static attributes of a unit type.
type UnitProfile struct {
	CrewSize        int
	DefaultCapacity int
	DispatchCost    decimal.Decimal
}

var unitProfiles = map[UnitType]UnitProfile{
	UnitTypeAmbulance:   {CrewSize: 3, DefaultCapacity: 1, DispatchCost: decimal.NewFromInt(500)},
	UnitTypeFireEngine:  {CrewSize: 5, DefaultCapacity: 1, DispatchCost: decimal.NewFromInt(1000)},
	UnitTypeRescueSquad: {CrewSize: 4, DefaultCapacity: 2, DispatchCost: decimal.NewFromInt(300)},
	UnitTypeSupport:     {CrewSize: 2, DefaultCapacity: 1, DispatchCost: decimal.NewFromInt(100)},
}

// PersonnelCost is the dispatch cost charged per crew member.
var PersonnelCost = decimal.NewFromInt(100)

// ProfileFor returns the crew and cost attributes for a unit type.
func ProfileFor(unitType UnitType) UnitProfile {
	profile, ok := unitProfiles[unitType]
	if !ok {
		return UnitProfile{CrewSize: 1, DefaultCapacity: 1, DispatchCost: decimal.Zero}
	}
	return profile
}

// ValidUnitType reports whether the value is a recognized unit type.
func ValidUnitType(unitType UnitType) bool {
	_, ok := unitProfiles[unitType]
	return ok
}

var readinessTransitions = map[ReadinessState][]ReadinessState{
	ReadinessAvailable: {ReadinessEnRoute, ReadinessOutOfService},
	// en_route -> available is a turnback when the incident is cancelled mid-run.
	ReadinessEnRoute:      {ReadinessOnScene, ReadinessAvailable, ReadinessOutOfService},
	ReadinessOnScene:      {ReadinessAvailable, ReadinessOutOfService},
	ReadinessOutOfService: {},
}

// CanTransitionReadiness reports whether the readiness graph allows current -> next.
// Leaving out_of_service is only possible through an explicit reinstatement.
func CanTransitionReadiness(current, next ReadinessState) bool {
	for _, candidate := range readinessTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidReadiness reports whether the value is a recognized readiness state.
func ValidReadiness(state ReadinessState) bool {
	switch state {
	case ReadinessAvailable, ReadinessEnRoute, ReadinessOnScene, ReadinessOutOfService:
		return true
	}
	return false
}
