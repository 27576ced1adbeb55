package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/nlu"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// matchAndDispatch drives a queued incident through allocation and dispatch.
func matchAndDispatch(t *testing.T, env *testEnv, incident *domain.Incident) (*domain.Allocation, *domain.DispatchTicket) {
	t.Helper()
	allocation, err := env.matching.Match(context.Background(), incident)
	require.NoError(t, err)
	ticket, err := env.dispatch.Dispatch(context.Background(), incident, allocation)
	require.NoError(t, err)
	return allocation, ticket
}

func TestDispatchIssuesInstructions(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)
	env.registerUnit(t, "AMB-2", domain.UnitTypeAmbulance, 0.02, 0, 1)

	incident := env.seedIncident(t, domain.CategoryCardiac, 7, domain.IncidentStatusQueued)
	_, ticket := matchAndDispatch(t, env, incident)

	assert.True(t, strings.HasPrefix(ticket.ExternalKey, "DSP-"))
	require.Len(t, ticket.Instructions, 2)
	for _, instruction := range ticket.Instructions {
		assert.Contains(t, instruction.Text, "Deploy to")
		assert.Contains(t, instruction.Text, incident.ExternalKey)

		unit, ok := env.pool.Get(instruction.UnitID)
		require.True(t, ok)
		assert.Equal(t, domain.ReadinessEnRoute, unit.Readiness)
		require.NotNil(t, unit.ActiveIncidentID)
		assert.Equal(t, incident.ID, *unit.ActiveIncidentID)
	}

	assert.Equal(t, domain.IncidentStatusDispatched, incident.Status)
	require.NotNil(t, incident.DispatchedAt)

	stored, err := env.dispatches.GetByIncident(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, stored.ID)

	assert.Len(t, env.notes.delivered(), 2, "each unit gets its instruction")
}

func TestDispatchSkipsBrokenUnit(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	broken := env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)
	healthy := env.registerUnit(t, "AMB-2", domain.UnitTypeAmbulance, 0.02, 0, 1)

	incident := env.seedIncident(t, domain.CategoryCardiac, 7, domain.IncidentStatusQueued)
	allocation, err := env.matching.Match(context.Background(), incident)
	require.NoError(t, err)

	// The unit breaks down between reservation and dispatch.
	_, err = env.pool.CompareAndSwapReadiness(broken.ID, domain.ReadinessAvailable, domain.ReadinessOutOfService)
	require.NoError(t, err)

	ticket, err := env.dispatch.Dispatch(context.Background(), incident, allocation)
	require.NoError(t, err)
	require.Len(t, ticket.Instructions, 1)
	assert.Equal(t, healthy.ID, ticket.Instructions[0].UnitID)
}

func TestDispatchFailsWithNoDispatchableUnits(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	only := env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	allocation, err := env.matching.Match(context.Background(), incident)
	require.NoError(t, err)

	_, err = env.pool.CompareAndSwapReadiness(only.ID, domain.ReadinessAvailable, domain.ReadinessOutOfService)
	require.NoError(t, err)

	_, err = env.dispatch.Dispatch(context.Background(), incident, allocation)
	assert.True(t, errorutil.IsNoResourcesAvailable(err))
	assert.Equal(t, domain.IncidentStatusAllocated, incident.Status, "a failed dispatch leaves the incident untouched")
}

func TestUpdateUnitStatus(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	_, ticket := matchAndDispatch(t, env, incident)
	unitID := ticket.Instructions[0].UnitID

	updated, err := env.dispatch.UpdateUnitStatus(context.Background(), unitID, domain.ReadinessOnScene)
	require.NoError(t, err)
	assert.Equal(t, domain.ReadinessOnScene, updated.Readiness)
	require.NotNil(t, updated.ActiveIncidentID, "arrival keeps the incident link")

	updated, err = env.dispatch.UpdateUnitStatus(context.Background(), unitID, domain.ReadinessAvailable)
	require.NoError(t, err)
	assert.Equal(t, domain.ReadinessAvailable, updated.Readiness)
	assert.Nil(t, updated.ActiveIncidentID, "returning to available drops the reservation")
}

func TestUpdateUnitStatusRejectsInvalidHop(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	unit := env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	_, err := env.dispatch.UpdateUnitStatus(context.Background(), unit.ID, domain.ReadinessOnScene)
	assert.True(t, errorutil.IsInvalidStateTransition(err))

	current, ok := env.pool.Get(unit.ID)
	require.True(t, ok)
	assert.Equal(t, domain.ReadinessAvailable, current.Readiness, "rejected transitions mutate nothing")

	_, err = env.dispatch.UpdateUnitStatus(context.Background(), unit.ID, domain.ReadinessState("warp"))
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidationFailed))

	_, err = env.dispatch.UpdateUnitStatus(context.Background(), "ghost", domain.ReadinessEnRoute)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))
}

func TestReinstateUnit(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	unit := env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	_, err := env.dispatch.UpdateUnitStatus(context.Background(), unit.ID, domain.ReadinessOutOfService)
	require.NoError(t, err)

	updated, err := env.dispatch.ReinstateUnit(context.Background(), unit.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReadinessAvailable, updated.Readiness)

	// Reinstating a unit that is not sidelined is a conflict.
	_, err = env.dispatch.ReinstateUnit(context.Background(), unit.ID)
	assert.True(t, errorutil.IsInvalidStateTransition(err))

	_, err = env.dispatch.ReinstateUnit(context.Background(), "ghost")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))
}

func TestRegisterUnitValidation(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	_, err := env.dispatch.RegisterUnit(context.Background(), UnitInput{Type: domain.UnitTypeAmbulance})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidationFailed))

	_, err = env.dispatch.RegisterUnit(context.Background(), UnitInput{CallSign: "X-1", Type: domain.UnitType("boat")})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidationFailed))

	_, err = env.dispatch.RegisterUnit(context.Background(), UnitInput{CallSign: "X-1", Type: domain.UnitTypeAmbulance, Latitude: 95})
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidationFailed))
}

func TestRegisterUnitDefaultCapacity(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	squad, err := env.dispatch.RegisterUnit(context.Background(), UnitInput{
		CallSign: "RSQ-1",
		Type:     domain.UnitTypeRescueSquad,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, squad.Capacity, "rescue squads default to their profile capacity")

	listed := env.dispatch.ListUnits(context.Background())
	require.Len(t, listed, 1)
	assert.Equal(t, squad.ID, listed[0].ID)
}

func TestResolveReleasesUnits(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)
	env.registerUnit(t, "AMB-2", domain.UnitTypeAmbulance, 0.02, 0, 1)

	incident := env.seedIncident(t, domain.CategoryCardiac, 7, domain.IncidentStatusQueued)
	allocation, _ := matchAndDispatch(t, env, incident)

	resolved, err := env.dispatch.Resolve(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ClosedAt)

	for _, assignment := range allocation.Assignments {
		unit, ok := env.pool.Get(assignment.UnitID)
		require.True(t, ok)
		assert.True(t, unit.Available(), "unit %s back in the pool", assignment.UnitID)
	}

	_, err = env.allocations.GetActiveByIncident(context.Background(), incident.ID)
	assert.Error(t, err, "the allocation is retired")

	// Resolving again is a no-op.
	again, err := env.dispatch.Resolve(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, again.Status)
}

func TestResolveRejectsEarlyStates(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	queued := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	_, err := env.dispatch.Resolve(context.Background(), queued.ID)
	assert.True(t, errorutil.IsInvalidStateTransition(err))

	_, err = env.dispatch.Resolve(context.Background(), "missing")
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))
}

func TestResolveRejectsCancelled(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusCancelled)

	_, err := env.dispatch.Resolve(context.Background(), incident.ID)
	assert.True(t, errorutil.IsInvalidStateTransition(err), "terminal states do not cross over")
}

func TestCancelQueuedIncident(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	require.NoError(t, env.queue.Enqueue(incident.ID, incident.Severity, time.Now()))

	cancelled, err := env.dispatch.Cancel(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ClosedAt)
	assert.False(t, env.queue.Contains(incident.ID), "cancelled incidents leave the queue")

	// Cancelling again is a no-op.
	again, err := env.dispatch.Cancel(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusCancelled, again.Status)
}

func TestCancelDispatchedReleasesUnitsSynchronously(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	allocation, _ := matchAndDispatch(t, env, incident)

	_, err := env.dispatch.Cancel(context.Background(), incident.ID)
	require.NoError(t, err)

	// By the time Cancel returns every unit is reusable.
	for _, assignment := range allocation.Assignments {
		unit, ok := env.pool.Get(assignment.UnitID)
		require.True(t, ok)
		assert.True(t, unit.Available())
	}
}

func TestCancelRejectsNewAndResolved(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	fresh := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusNew)
	_, err := env.dispatch.Cancel(context.Background(), fresh.ID)
	assert.True(t, errorutil.IsInvalidStateTransition(err), "intake must finish before a cancel lands")

	done := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusResolved)
	_, err = env.dispatch.Cancel(context.Background(), done.ID)
	assert.True(t, errorutil.IsInvalidStateTransition(err))
}
