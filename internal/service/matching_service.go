package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resources"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// MatchingService selects and reserves units for assessed incidents.
type MatchingService struct {
	incidents   repository.IncidentRepository
	allocations repository.AllocationRepository
	units       repository.UnitRepository
	history     repository.IncidentHistoryRepository
	pool        *resources.Pool
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	cfg         config.MatchingConfig
}

// MatchingDependencies bundles collaborators for the matching service.
type MatchingDependencies struct {
	IncidentRepo   repository.IncidentRepository
	AllocationRepo repository.AllocationRepository
	UnitRepo       repository.UnitRepository
	HistoryRepo    repository.IncidentHistoryRepository
	Pool           *resources.Pool
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	Config         config.MatchingConfig
}

// NewMatchingService constructs the service.
func NewMatchingService(deps MatchingDependencies) *MatchingService {
	return &MatchingService{
		incidents:   deps.IncidentRepo,
		allocations: deps.AllocationRepo,
		units:       deps.UnitRepo,
		history:     deps.HistoryRepo,
		pool:        deps.Pool,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         deps.Config,
	}
}

// RequiredCapacity returns the capacity an incident needs, a category base
// count scaled up by severity tier.
func RequiredCapacity(category domain.IncidentCategory, severity int) int {
	switch category {
	case domain.CategoryCardiac:
		if severity >= 8 {
			return 3
		}
		return 2
	case domain.CategoryTrauma:
		switch {
		case severity >= 8:
			return 3
		case severity >= 7:
			return 2
		default:
			return 1
		}
	case domain.CategoryFire:
		if severity >= 8 {
			return 5
		}
		return 3
	default:
		return 1
	}
}

// Match reserves nearest-first available units until the incident's required
// capacity is covered or the eligible pool runs out. A short pool yields a
// partial allocation with an explicit deficit; a pool with zero eligible
// units yields NO_RESOURCES_AVAILABLE and leaves the incident queued. The
// caller serializes access to the incident.
func (s *MatchingService) Match(ctx context.Context, incident *domain.Incident) (*domain.Allocation, error) {
	if !domain.CanTransitionIncident(incident.Status, domain.IncidentStatusAllocated) {
		return nil, errorutil.NewInvalidStateTransition("incident", string(incident.Status), string(domain.IncidentStatusAllocated))
	}

	required := RequiredCapacity(incident.Category, incident.Severity)
	candidates := s.pool.ListAvailable(incident.Location, s.cfg.MaxRadiusMeters)
	if len(candidates) == 0 {
		s.metrics.RecordStage(observability.StageAllocationRetries)
		return nil, errorutil.NewNoResourcesAvailable(incident.ID)
	}

	var (
		assignments []domain.Assignment
		assigned    int
		personnel   int
		cost        = decimal.Zero
	)
	for _, unit := range candidates {
		if assigned >= required {
			break
		}
		// Availability is re-validated inside the reservation itself; a
		// candidate lost to a concurrent match is simply skipped.
		if !s.pool.TryReserve(unit.ID, incident.ID) {
			continue
		}
		distance := unit.Location.DistanceMeters(incident.Location)
		profile := domain.ProfileFor(unit.Type)
		assignments = append(assignments, domain.Assignment{
			UnitID:         unit.ID,
			CallSign:       unit.CallSign,
			UnitType:       unit.Type,
			DistanceMeters: distance,
			TravelTime:     domain.TravelTime(distance, s.cfg.AverageSpeedKMH),
		})
		assigned += unit.Capacity
		personnel += profile.CrewSize
		cost = cost.Add(profile.DispatchCost)
	}

	if len(assignments) == 0 {
		s.metrics.RecordStage(observability.StageAllocationRetries)
		return nil, errorutil.NewNoResourcesAvailable(incident.ID)
	}

	cost = cost.Add(domain.PersonnelCost.Mul(decimal.NewFromInt(int64(personnel))))

	deficit := required - assigned
	if deficit < 0 {
		deficit = 0
	}
	allocation := &domain.Allocation{
		IncidentID:       incident.ID,
		Assignments:      assignments,
		RequiredCapacity: required,
		AssignedCapacity: assigned,
		Deficit:          deficit,
		Partial:          assigned < required,
		PersonnelCount:   personnel,
		EstimatedCost:    cost,
	}
	if err := s.allocations.Create(ctx, allocation); err != nil {
		s.pool.ReleaseForIncident(incident.ID)
		return nil, errorutil.ToDomainError(err)
	}
	s.persistReservedUnits(ctx, allocation)

	oldStatus := incident.Status
	incident.Status = domain.IncidentStatusAllocated
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if err := recordStatusChange(ctx, s.history, actorCoordinator, incident.ID, oldStatus, incident.Status, "allocation committed"); err != nil {
		s.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
	}
	if err := recordAllocationChange(ctx, s.history, actorCoordinator, incident.ID, allocation.ID, allocation.UnitIDs(), allocationDetail(allocation)); err != nil {
		s.logger.Warn("failed to record allocation change", zap.String("incident_id", incident.ID), zap.Error(err))
	}

	s.metrics.RecordStage(observability.StageAllocated)
	if allocation.Partial {
		s.metrics.RecordStage(observability.StagePartialAllocated)
	}
	s.logger.Info("incident allocated",
		zap.String("incident_id", incident.ID),
		zap.String("allocation_id", allocation.ID),
		zap.Int("required_capacity", required),
		zap.Int("assigned_capacity", assigned),
		zap.Bool("partial", allocation.Partial))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:       events.EventIncidentAllocated,
		IncidentID: incident.ID,
		Actor:      actorCoordinator,
		Payload: events.IncidentAllocatedPayload{
			AllocationID: allocation.ID,
			UnitIDs:      allocation.UnitIDs(),
			Partial:      allocation.Partial,
			Deficit:      allocation.Deficit,
		},
	})
	return allocation, nil
}

// persistReservedUnits writes the reservation markers through to storage.
// Failures here leave stale rows that the pool reload reconciles at startup,
// so they are logged rather than unwound.
func (s *MatchingService) persistReservedUnits(ctx context.Context, allocation *domain.Allocation) {
	for _, assignment := range allocation.Assignments {
		unit, ok := s.pool.Get(assignment.UnitID)
		if !ok {
			continue
		}
		if err := s.units.Update(ctx, &unit); err != nil {
			s.logger.Warn("failed to persist unit reservation",
				zap.String("unit_id", unit.ID),
				zap.Error(err))
		}
	}
}

func allocationDetail(allocation *domain.Allocation) string {
	if allocation.Partial {
		return "partial"
	}
	return "full"
}
