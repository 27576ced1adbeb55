package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/nlu"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

func TestSubmitQueuesIncident(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	incident, err := env.coordinator.Submit(context.Background(), ReportInput{
		Description: "severe chest pain, heart racing",
		Latitude:    40.7,
		Longitude:   -74.0,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IncidentStatusQueued, incident.Status)
	assert.Equal(t, domain.CategoryCardiac, incident.Category)
	require.NotNil(t, incident.QueuedAt)
	assert.True(t, env.queue.Contains(incident.ID))
	assert.Equal(t, 1, env.coordinator.QueueDepth())

	stored, err := env.incidents.GetByID(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusQueued, stored.Status)
}

func TestDrainServesPriorityOrderAndBlocks(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	base := time.Now().UTC()
	minor := env.seedIncident(t, domain.CategoryTrauma, 3, domain.IncidentStatusQueued)
	require.NoError(t, env.queue.Enqueue(minor.ID, minor.Severity, base))
	critical := env.seedIncident(t, domain.CategoryCardiac, 9, domain.IncidentStatusQueued)
	require.NoError(t, env.queue.Enqueue(critical.ID, critical.Severity, base.Add(time.Second)))

	env.coordinator.drain(context.Background())

	// The critical incident takes the only unit, partially; the minor one
	// stays queued because nothing is left for it.
	storedCritical, err := env.incidents.GetByID(context.Background(), critical.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusDispatched, storedCritical.Status)

	storedMinor, err := env.incidents.GetByID(context.Background(), minor.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusQueued, storedMinor.Status)
	assert.True(t, env.queue.Contains(minor.ID))
	assert.Equal(t, 1, env.coordinator.QueueDepth())
}

func TestDrainDropsStaleEntries(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	cancelled := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusCancelled)
	require.NoError(t, env.queue.Enqueue(cancelled.ID, cancelled.Severity, time.Now()))

	env.coordinator.drain(context.Background())

	assert.Zero(t, env.coordinator.QueueDepth())
	stored, err := env.incidents.GetByID(context.Background(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusCancelled, stored.Status)

	unit := env.pool.ListAvailable(domain.Location{}, 0)
	assert.Len(t, unit, 1, "stale entries consume no resources")
}

func TestRunDispatchesSubmittedIncident(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)
	env.registerUnit(t, "AMB-2", domain.UnitTypeAmbulance, 0.02, 0, 1)
	env.registerUnit(t, "AMB-3", domain.UnitTypeAmbulance, 0.03, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.coordinator.Run(ctx) }()

	incident, err := env.coordinator.Submit(context.Background(), ReportInput{
		Description: "chest pain and trouble breathing",
		Latitude:    0,
		Longitude:   0,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := env.incidents.GetByID(context.Background(), incident.ID)
		return err == nil && stored.Status == domain.IncidentStatusDispatched
	}, 3*time.Second, 10*time.Millisecond, "pipeline should dispatch the incident")

	ticket, err := env.dispatches.GetByIncident(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.Instructions)

	cancel()
	require.NoError(t, <-done)
}

func TestRunUnblocksOnUnitRegistration(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- env.coordinator.Run(ctx) }()

	incident, err := env.coordinator.Submit(context.Background(), ReportInput{
		Description: "car accident at the bridge",
	})
	require.NoError(t, err)

	// With an empty fleet the incident holds in the queue.
	time.Sleep(50 * time.Millisecond)
	stored, err := env.incidents.GetByID(context.Background(), incident.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusQueued, stored.Status)

	// A new unit wakes the workers and the head is served.
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	require.Eventually(t, func() bool {
		stored, err := env.incidents.GetByID(context.Background(), incident.ID)
		return err == nil && stored.Status == domain.IncidentStatusDispatched
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestReprioritizeReordersQueue(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())

	base := time.Now().UTC()
	first := env.seedIncident(t, domain.CategoryTrauma, 8, domain.IncidentStatusQueued)
	require.NoError(t, env.queue.Enqueue(first.ID, first.Severity, base))
	second := env.seedIncident(t, domain.CategoryTrauma, 4, domain.IncidentStatusQueued)
	require.NoError(t, env.queue.Enqueue(second.ID, second.Severity, base.Add(time.Second)))

	updated, err := env.coordinator.Reprioritize(context.Background(), second.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.Severity)

	snapshot := env.coordinator.QueueSnapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, second.ID, snapshot[0].IncidentID)
	assert.Equal(t, 10, snapshot[0].Severity)
	// Waiting time is kept, not reset.
	assert.True(t, snapshot[0].EnqueuedAt.Equal(base.Add(time.Second)))

	stored, err := env.incidents.GetByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Severity)
}

func TestReprioritizeValidation(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)

	_, err := env.coordinator.Reprioritize(context.Background(), incident.ID, 0)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidationFailed))
	_, err = env.coordinator.Reprioritize(context.Background(), incident.ID, 11)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidationFailed))

	_, err = env.coordinator.Reprioritize(context.Background(), "missing", 5)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeNotFound))
}

func TestReprioritizeTerminalRejected(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusResolved)

	_, err := env.coordinator.Reprioritize(context.Background(), incident.ID, 8)
	assert.True(t, errorutil.IsInvalidStateTransition(err))
}

func TestReprioritizePastQueueKeepsSeverity(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	env.registerUnit(t, "AMB-1", domain.UnitTypeAmbulance, 0.01, 0, 1)

	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	matchAndDispatch(t, env, incident)

	updated, err := env.coordinator.Reprioritize(context.Background(), incident.ID, 9)
	require.NoError(t, err, "severity corrections land even after dispatch")
	assert.Equal(t, 9, updated.Severity)
	assert.Equal(t, domain.IncidentStatusDispatched, updated.Status)
}

func TestReprioritizeSameSeverityNoOp(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	incident := env.seedIncident(t, domain.CategoryTrauma, 5, domain.IncidentStatusQueued)
	require.NoError(t, env.queue.Enqueue(incident.ID, incident.Severity, time.Now()))

	updated, err := env.coordinator.Reprioritize(context.Background(), incident.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Severity)
}

func TestRecoverRebuildsState(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	ctx := context.Background()

	// Fleet rows as they would look after a crash: one free, one holding a
	// reservation for an allocated incident.
	free := &domain.ResourceUnit{
		CallSign:  "AMB-1",
		Type:      domain.UnitTypeAmbulance,
		Location:  domain.Location{Latitude: 0.01},
		Readiness: domain.ReadinessAvailable,
		Capacity:  1,
	}
	require.NoError(t, env.units.Create(ctx, free))

	fresh := env.seedIncident(t, domain.CategoryTrauma, 4, domain.IncidentStatusNew)
	waiting := env.seedIncident(t, domain.CategoryFire, 7, domain.IncidentStatusQueued)

	allocated := env.seedIncident(t, domain.CategoryTrauma, 6, domain.IncidentStatusAllocated)
	reserved := &domain.ResourceUnit{
		CallSign:         "AMB-2",
		Type:             domain.UnitTypeAmbulance,
		Location:         domain.Location{Latitude: 0.02},
		Readiness:        domain.ReadinessAvailable,
		Capacity:         1,
		ActiveIncidentID: &allocated.ID,
	}
	require.NoError(t, env.units.Create(ctx, reserved))
	allocation := &domain.Allocation{
		IncidentID: allocated.ID,
		Assignments: []domain.Assignment{{
			UnitID:         reserved.ID,
			CallSign:       reserved.CallSign,
			UnitType:       reserved.Type,
			DistanceMeters: 2000,
			TravelTime:     2 * time.Minute,
		}},
		RequiredCapacity: 1,
		AssignedCapacity: 1,
	}
	require.NoError(t, env.allocations.Create(ctx, allocation))

	require.NoError(t, env.coordinator.Recover(ctx))

	// The fleet is back in memory.
	_, ok := env.pool.Get(free.ID)
	assert.True(t, ok)

	// Pre-allocation incidents are queued again, intake ones promoted.
	assert.True(t, env.queue.Contains(fresh.ID))
	assert.True(t, env.queue.Contains(waiting.ID))
	storedFresh, err := env.incidents.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusQueued, storedFresh.Status)

	// The interrupted allocation was pushed through to dispatch.
	storedAllocated, err := env.incidents.GetByID(ctx, allocated.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusDispatched, storedAllocated.Status)
	unit, ok := env.pool.Get(reserved.ID)
	require.True(t, ok)
	assert.Equal(t, domain.ReadinessEnRoute, unit.Readiness)
}

func TestRecoverRequeuesAllocationlessIncident(t *testing.T) {
	env := newTestEnv(t, nlu.NewKeywordClassifier())
	ctx := context.Background()

	orphan := env.seedIncident(t, domain.CategoryTrauma, 6, domain.IncidentStatusAllocated)

	require.NoError(t, env.coordinator.Recover(ctx))

	stored, err := env.incidents.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusQueued, stored.Status, "lost allocations collapse back to queued")
	assert.True(t, env.queue.Contains(orphan.ID))
}
