package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestReadinessTransitions(t *testing.T) {
	assert.True(t, CanTransitionReadiness(ReadinessAvailable, ReadinessEnRoute))
	assert.True(t, CanTransitionReadiness(ReadinessEnRoute, ReadinessOnScene))
	assert.True(t, CanTransitionReadiness(ReadinessOnScene, ReadinessAvailable))

	// A dispatch recalled before arrival turns back to available.
	assert.True(t, CanTransitionReadiness(ReadinessEnRoute, ReadinessAvailable))

	assert.False(t, CanTransitionReadiness(ReadinessAvailable, ReadinessOnScene))
	assert.False(t, CanTransitionReadiness(ReadinessOnScene, ReadinessEnRoute))
	assert.False(t, CanTransitionReadiness(ReadinessAvailable, ReadinessAvailable))
}

func TestReadinessOutOfService(t *testing.T) {
	for _, from := range []ReadinessState{ReadinessAvailable, ReadinessEnRoute, ReadinessOnScene} {
		assert.True(t, CanTransitionReadiness(from, ReadinessOutOfService), "%s -> out_of_service", from)
	}
	for _, next := range []ReadinessState{ReadinessAvailable, ReadinessEnRoute, ReadinessOnScene, ReadinessOutOfService} {
		assert.False(t, CanTransitionReadiness(ReadinessOutOfService, next), "out_of_service -> %s", next)
	}
}

func TestUnitAvailable(t *testing.T) {
	unit := &ResourceUnit{Readiness: ReadinessAvailable}
	assert.True(t, unit.Available())

	incidentID := "0b8f0a1e-1111-2222-3333-444455556666"
	unit.ActiveIncidentID = &incidentID
	assert.False(t, unit.Available(), "reserved units are not available")

	unit.ActiveIncidentID = nil
	unit.Readiness = ReadinessEnRoute
	assert.False(t, unit.Available())
	unit.Readiness = ReadinessOutOfService
	assert.False(t, unit.Available())
}

func TestProfileFor(t *testing.T) {
	ambulance := ProfileFor(UnitTypeAmbulance)
	assert.Equal(t, 3, ambulance.CrewSize)
	assert.Equal(t, 1, ambulance.DefaultCapacity)
	assert.True(t, ambulance.DispatchCost.Equal(decimal.NewFromInt(500)))

	fire := ProfileFor(UnitTypeFireEngine)
	assert.Equal(t, 5, fire.CrewSize)
	assert.True(t, fire.DispatchCost.Equal(decimal.NewFromInt(1000)))

	rescue := ProfileFor(UnitTypeRescueSquad)
	assert.Equal(t, 4, rescue.CrewSize)
	assert.Equal(t, 2, rescue.DefaultCapacity)
	assert.True(t, rescue.DispatchCost.Equal(decimal.NewFromInt(300)))

	support := ProfileFor(UnitTypeSupport)
	assert.Equal(t, 2, support.CrewSize)
	assert.True(t, support.DispatchCost.Equal(decimal.NewFromInt(100)))
}

func TestProfileForUnknownType(t *testing.T) {
	profile := ProfileFor(UnitType("helicopter"))
	assert.Equal(t, 1, profile.CrewSize)
	assert.Equal(t, 1, profile.DefaultCapacity)
	assert.True(t, profile.DispatchCost.IsZero())
}

func TestValidUnitType(t *testing.T) {
	assert.True(t, ValidUnitType(UnitTypeAmbulance))
	assert.True(t, ValidUnitType(UnitTypeFireEngine))
	assert.True(t, ValidUnitType(UnitTypeRescueSquad))
	assert.True(t, ValidUnitType(UnitTypeSupport))
	assert.False(t, ValidUnitType(UnitType("boat")))
	assert.False(t, ValidUnitType(UnitType("")))
}

func TestValidReadiness(t *testing.T) {
	assert.True(t, ValidReadiness(ReadinessAvailable))
	assert.True(t, ValidReadiness(ReadinessOutOfService))
	assert.False(t, ValidReadiness(ReadinessState("sleeping")))
}
