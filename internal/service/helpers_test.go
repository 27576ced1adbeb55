package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/nlu"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resources"
	"github.com/spec-kit/dispatch-service/internal/triage"
)

// testEnv wires the full pipeline against in-memory stores. Tests reach into
// individual services or the coordinator as needed.
type testEnv struct {
	incidents   repository.IncidentRepository
	units       repository.UnitRepository
	allocations repository.AllocationRepository
	dispatches  repository.DispatchRepository
	history     repository.IncidentHistoryRepository

	pool  *resources.Pool
	queue *triage.Queue
	locks *IncidentLocks
	bus   events.Dispatcher
	notes *captureNotifier

	assessment  *AssessmentService
	matching    *MatchingService
	dispatch    *DispatchService
	queries     *IncidentService
	coordinator *Coordinator
}

func newTestEnv(t *testing.T, classifier nlu.Classifier) *testEnv {
	t.Helper()

	env := &testEnv{
		incidents:   repository.NewMemoryIncidentRepository(),
		units:       repository.NewMemoryUnitRepository(),
		allocations: repository.NewMemoryAllocationRepository(),
		dispatches:  repository.NewMemoryDispatchRepository(),
		history:     repository.NewMemoryHistoryRepository(),
		pool:        resources.NewPool(),
		queue:       triage.NewQueue(),
		locks:       NewIncidentLocks(),
		bus:         events.NewInMemoryDispatcher(),
		notes:       &captureNotifier{},
	}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	env.assessment = NewAssessmentService(AssessmentDependencies{
		IncidentRepo: env.incidents,
		Classifier:   classifier,
		Dispatcher:   env.bus,
		Metrics:      metrics,
		Logger:       logger,
		Config: config.AssessmentConfig{
			TimeoutSeconds:   1,
			RetryAttempts:    1,
			FallbackSeverity: 5,
		},
	})
	env.matching = NewMatchingService(MatchingDependencies{
		IncidentRepo:   env.incidents,
		AllocationRepo: env.allocations,
		UnitRepo:       env.units,
		HistoryRepo:    env.history,
		Pool:           env.pool,
		Dispatcher:     env.bus,
		Metrics:        metrics,
		Logger:         logger,
		Config: config.MatchingConfig{
			AverageSpeedKMH: 50,
		},
	})
	env.dispatch = NewDispatchService(DispatchDependencies{
		IncidentRepo:   env.incidents,
		AllocationRepo: env.allocations,
		DispatchRepo:   env.dispatches,
		UnitRepo:       env.units,
		HistoryRepo:    env.history,
		Pool:           env.pool,
		Queue:          env.queue,
		Locks:          env.locks,
		Notifier:       env.notes,
		Dispatcher:     env.bus,
		Metrics:        metrics,
		Logger:         logger,
	})
	env.queries = NewIncidentService(IncidentQueryDependencies{
		IncidentRepo:   env.incidents,
		AllocationRepo: env.allocations,
		DispatchRepo:   env.dispatches,
		HistoryRepo:    env.history,
		Pool:           env.pool,
		Logger:         logger,
	})
	env.coordinator = NewCoordinator(CoordinatorDependencies{
		Assessment:     env.assessment,
		Matching:       env.matching,
		Dispatch:       env.dispatch,
		IncidentRepo:   env.incidents,
		UnitRepo:       env.units,
		AllocationRepo: env.allocations,
		HistoryRepo:    env.history,
		Queue:          env.queue,
		Pool:           env.pool,
		Locks:          env.locks,
		Dispatcher:     env.bus,
		Metrics:        metrics,
		Logger:         logger,
		Config: config.CoordinatorConfig{
			Workers:                2,
			RequeueIntervalSeconds: 1,
		},
	})
	return env
}

// registerUnit creates a fleet unit through the normal registration path.
func (e *testEnv) registerUnit(t *testing.T, callSign string, unitType domain.UnitType, lat, lon float64, capacity int) *domain.ResourceUnit {
	t.Helper()
	unit, err := e.dispatch.RegisterUnit(context.Background(), UnitInput{
		CallSign:  callSign,
		Type:      unitType,
		Latitude:  lat,
		Longitude: lon,
		Capacity:  capacity,
	})
	require.NoError(t, err)
	return unit
}

// seedIncident persists an incident directly in the given status, bypassing
// intake, for tests that exercise later pipeline stages in isolation.
func (e *testEnv) seedIncident(t *testing.T, category domain.IncidentCategory, severity int, status domain.IncidentStatus) *domain.Incident {
	t.Helper()
	incident := &domain.Incident{
		ExternalKey: generateIncidentKey(),
		Category:    category,
		Severity:    severity,
		Confidence:  0.9,
		Location:    domain.Location{Latitude: 0, Longitude: 0},
		Description: "seeded",
		Status:      status,
	}
	require.NoError(t, e.incidents.Create(context.Background(), incident))
	if status == domain.IncidentStatusQueued {
		now := time.Now().UTC()
		incident.QueuedAt = &now
		require.NoError(t, e.incidents.Update(context.Background(), incident))
	}
	return incident
}

// captureNotifier records instruction deliveries.
type captureNotifier struct {
	mu       sync.Mutex
	messages []string
	unitIDs  []string
}

func (n *captureNotifier) Notify(ctx context.Context, unitID, callSign, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unitIDs = append(n.unitIDs, unitID)
	n.messages = append(n.messages, message)
	return nil
}

func (n *captureNotifier) delivered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.unitIDs...)
}

// stubClassifier returns a canned result or error.
type stubClassifier struct {
	result *nlu.Result
	err    error
}

func (c *stubClassifier) Classify(ctx context.Context, text string, hints []string) (*nlu.Result, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

var errClassifierDown = errors.New("classifier down")
