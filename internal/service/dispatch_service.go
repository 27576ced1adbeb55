package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/notify"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resources"
	"github.com/spec-kit/dispatch-service/internal/triage"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// DispatchService issues dispatch tickets and tracks incident and unit state
// until resolution or cancellation.
type DispatchService struct {
	incidents   repository.IncidentRepository
	allocations repository.AllocationRepository
	dispatches  repository.DispatchRepository
	units       repository.UnitRepository
	history     repository.IncidentHistoryRepository
	pool        *resources.Pool
	queue       *triage.Queue
	locks       *IncidentLocks
	notifier    notify.Notifier
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// DispatchDependencies bundles collaborators for the dispatch service.
type DispatchDependencies struct {
	IncidentRepo   repository.IncidentRepository
	AllocationRepo repository.AllocationRepository
	DispatchRepo   repository.DispatchRepository
	UnitRepo       repository.UnitRepository
	HistoryRepo    repository.IncidentHistoryRepository
	Pool           *resources.Pool
	Queue          *triage.Queue
	Locks          *IncidentLocks
	Notifier       notify.Notifier
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// UnitInput describes a unit registration payload.
type UnitInput struct {
	CallSign  string
	Type      domain.UnitType
	Latitude  float64
	Longitude float64
	Address   string
	Capacity  int
}

// NewDispatchService constructs the service.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	return &DispatchService{
		incidents:   deps.IncidentRepo,
		allocations: deps.AllocationRepo,
		dispatches:  deps.DispatchRepo,
		units:       deps.UnitRepo,
		history:     deps.HistoryRepo,
		pool:        deps.Pool,
		queue:       deps.Queue,
		locks:       deps.Locks,
		notifier:    deps.Notifier,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Dispatch issues instructions for a committed allocation, moving the
// incident to dispatched and each reserved unit to en_route. Units that went
// out_of_service since reservation are skipped; if none remain the dispatch
// fails without mutating the incident. The caller serializes access to the
// incident.
func (s *DispatchService) Dispatch(ctx context.Context, incident *domain.Incident, allocation *domain.Allocation) (*domain.DispatchTicket, error) {
	if !domain.CanTransitionIncident(incident.Status, domain.IncidentStatusDispatched) {
		return nil, errorutil.NewInvalidStateTransition("incident", string(incident.Status), string(domain.IncidentStatusDispatched))
	}

	now := time.Now().UTC()
	instructions := make([]domain.DispatchInstruction, 0, len(allocation.Assignments))
	for _, assignment := range allocation.Assignments {
		updated, err := s.pool.CompareAndSwapReadiness(assignment.UnitID, domain.ReadinessAvailable, domain.ReadinessEnRoute)
		if err != nil {
			s.logger.Warn("reserved unit not dispatchable",
				zap.String("unit_id", assignment.UnitID),
				zap.String("incident_id", incident.ID),
				zap.Error(err))
			continue
		}
		s.persistUnit(ctx, updated)
		instructions = append(instructions, domain.DispatchInstruction{
			UnitID:   assignment.UnitID,
			CallSign: assignment.CallSign,
			Text:     instructionText(incident, assignment),
		})
	}
	if len(instructions) == 0 {
		return nil, errorutil.NewNoResourcesAvailable(incident.ID)
	}

	ticket := &domain.DispatchTicket{
		ExternalKey:  generateDispatchKey(),
		IncidentID:   incident.ID,
		AllocationID: allocation.ID,
		Instructions: instructions,
		DispatchedAt: now,
	}
	if err := s.dispatches.Create(ctx, ticket); err != nil {
		return nil, errorutil.ToDomainError(err)
	}

	oldStatus := incident.Status
	incident.Status = domain.IncidentStatusDispatched
	incident.DispatchedAt = &now
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if err := recordStatusChange(ctx, s.history, actorCoordinator, incident.ID, oldStatus, incident.Status, "units en route"); err != nil {
		s.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
	}

	for _, instruction := range instructions {
		if err := s.notifier.Notify(ctx, instruction.UnitID, instruction.CallSign, instruction.Text); err != nil {
			s.logger.Warn("unit notification failed",
				zap.String("unit_id", instruction.UnitID),
				zap.Error(err))
		}
	}

	s.metrics.RecordStage(observability.StageDispatched)
	s.logger.Info("incident dispatched",
		zap.String("incident_id", incident.ID),
		zap.String("dispatch_id", ticket.ID),
		zap.String("external_key", ticket.ExternalKey),
		zap.Int("units", len(instructions)))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:       events.EventIncidentDispatched,
		IncidentID: incident.ID,
		Actor:      actorCoordinator,
		Payload: events.IncidentDispatchedPayload{
			DispatchID: ticket.ID,
			UnitIDs:    instructionUnitIDs(instructions),
			ETASeconds: int64(allocation.LongestTravelTime().Seconds()),
		},
	})
	return ticket, nil
}

// UpdateUnitStatus validates and applies one readiness transition. Invalid
// hops and lost races are both rejected without mutation.
func (s *DispatchService) UpdateUnitStatus(ctx context.Context, unitID string, next domain.ReadinessState) (*domain.ResourceUnit, error) {
	if !domain.ValidReadiness(next) {
		return nil, errorutil.NewValidationError("unknown readiness state", map[string]any{"state": string(next)})
	}
	unit, ok := s.pool.Get(unitID)
	if !ok {
		return nil, errorutil.NewNotFound("unit", map[string]any{"unit_id": unitID})
	}
	if !domain.CanTransitionReadiness(unit.Readiness, next) {
		return nil, errorutil.NewInvalidStateTransition("unit", string(unit.Readiness), string(next))
	}

	incidentID := ""
	if unit.ActiveIncidentID != nil {
		incidentID = *unit.ActiveIncidentID
	}

	updated, err := s.pool.CompareAndSwapReadiness(unitID, unit.Readiness, next)
	if err != nil {
		if err == resources.ErrUnitNotFound {
			return nil, errorutil.NewNotFound("unit", map[string]any{"unit_id": unitID})
		}
		return nil, errorutil.NewInvalidStateTransition("unit", string(updated.Readiness), string(next))
	}
	s.persistUnit(ctx, updated)

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:       events.EventUnitStatusChanged,
		IncidentID: incidentID,
		Actor:      actorOperator,
		Payload: events.UnitStatusChangedPayload{
			UnitID:   updated.ID,
			CallSign: updated.CallSign,
			OldState: unit.Readiness,
			NewState: updated.Readiness,
		},
	})
	return &updated, nil
}

// ReinstateUnit returns an out_of_service unit to the available pool. This is
// the only path out of out_of_service.
func (s *DispatchService) ReinstateUnit(ctx context.Context, unitID string) (*domain.ResourceUnit, error) {
	updated, err := s.pool.CompareAndSwapReadiness(unitID, domain.ReadinessOutOfService, domain.ReadinessAvailable)
	if err != nil {
		if err == resources.ErrUnitNotFound {
			return nil, errorutil.NewNotFound("unit", map[string]any{"unit_id": unitID})
		}
		return nil, errorutil.NewInvalidStateTransition("unit", string(updated.Readiness), string(domain.ReadinessAvailable))
	}
	s.persistUnit(ctx, updated)

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:  events.EventUnitStatusChanged,
		Actor: actorOperator,
		Payload: events.UnitStatusChangedPayload{
			UnitID:   updated.ID,
			CallSign: updated.CallSign,
			OldState: domain.ReadinessOutOfService,
			NewState: updated.Readiness,
		},
	})
	return &updated, nil
}

// RegisterUnit adds a unit to the fleet.
func (s *DispatchService) RegisterUnit(ctx context.Context, input UnitInput) (*domain.ResourceUnit, error) {
	callSign := strings.TrimSpace(input.CallSign)
	if callSign == "" {
		return nil, errorutil.NewValidationError("call_sign required", nil)
	}
	if !domain.ValidUnitType(input.Type) {
		return nil, errorutil.NewValidationError("unknown unit type", map[string]any{"type": string(input.Type)})
	}
	location := domain.Location{
		Latitude:  input.Latitude,
		Longitude: input.Longitude,
		Address:   strings.TrimSpace(input.Address),
	}
	if !location.Valid() {
		return nil, errorutil.NewValidationError("location coordinates out of range", nil)
	}
	capacity := input.Capacity
	if capacity <= 0 {
		capacity = domain.ProfileFor(input.Type).DefaultCapacity
	}

	unit := &domain.ResourceUnit{
		CallSign:  callSign,
		Type:      input.Type,
		Location:  location,
		Readiness: domain.ReadinessAvailable,
		Capacity:  capacity,
	}
	if err := s.units.Create(ctx, unit); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if err := s.pool.Register(*unit); err != nil {
		return nil, errorutil.NewConflict(err.Error(), map[string]any{"unit_id": unit.ID})
	}

	s.logger.Info("unit registered",
		zap.String("unit_id", unit.ID),
		zap.String("call_sign", unit.CallSign),
		zap.String("type", string(unit.Type)))
	return unit, nil
}

// GetUnit returns the live view of one unit.
func (s *DispatchService) GetUnit(ctx context.Context, unitID string) (*domain.ResourceUnit, error) {
	unit, ok := s.pool.Get(unitID)
	if !ok {
		return nil, errorutil.NewNotFound("unit", map[string]any{"unit_id": unitID})
	}
	return &unit, nil
}

// ListUnits returns the live fleet view.
func (s *DispatchService) ListUnits(ctx context.Context) []domain.ResourceUnit {
	return s.pool.List()
}

// Resolve closes out a dispatched incident and returns every held unit to
// available. Resolving an already resolved incident is a no-op.
func (s *DispatchService) Resolve(ctx context.Context, incidentID string) (*domain.Incident, error) {
	release := s.locks.Acquire(incidentID)
	defer release()

	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if incident.Status == domain.IncidentStatusResolved {
		return incident, nil
	}
	if !domain.CanTransitionIncident(incident.Status, domain.IncidentStatusResolved) {
		return nil, errorutil.NewInvalidStateTransition("incident", string(incident.Status), string(domain.IncidentStatusResolved))
	}

	released := s.releaseHeldResources(ctx, incident.ID)

	now := time.Now().UTC()
	oldStatus := incident.Status
	incident.Status = domain.IncidentStatusResolved
	incident.ClosedAt = &now
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if err := recordStatusChange(ctx, s.history, actorOperator, incident.ID, oldStatus, incident.Status, "incident resolved"); err != nil {
		s.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
	}

	s.metrics.RecordStage(observability.StageResolved)
	s.logger.Info("incident resolved",
		zap.String("incident_id", incident.ID),
		zap.Int("released_units", len(released)))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:       events.EventIncidentResolved,
		IncidentID: incident.ID,
		Actor:      actorOperator,
		Payload: events.IncidentResolvedPayload{
			ReleasedUnitIDs: unitIDs(released),
		},
	})
	return incident, nil
}

// Cancel aborts an incident from any pre-terminal status past intake,
// synchronously releasing all reservations before returning. Cancelling an
// already cancelled incident is a no-op.
func (s *DispatchService) Cancel(ctx context.Context, incidentID string) (*domain.Incident, error) {
	release := s.locks.Acquire(incidentID)
	defer release()

	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if incident.Status == domain.IncidentStatusCancelled {
		return incident, nil
	}
	if !domain.CanTransitionIncident(incident.Status, domain.IncidentStatusCancelled) {
		return nil, errorutil.NewInvalidStateTransition("incident", string(incident.Status), string(domain.IncidentStatusCancelled))
	}

	s.queue.Remove(incident.ID)
	released := s.releaseHeldResources(ctx, incident.ID)

	now := time.Now().UTC()
	oldStatus := incident.Status
	incident.Status = domain.IncidentStatusCancelled
	incident.ClosedAt = &now
	if err := s.incidents.Update(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if err := recordStatusChange(ctx, s.history, actorOperator, incident.ID, oldStatus, incident.Status, "incident cancelled"); err != nil {
		s.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
	}

	s.metrics.RecordStage(observability.StageCancelled)
	s.metrics.SetQueueDepth(s.queue.Len())
	s.logger.Info("incident cancelled",
		zap.String("incident_id", incident.ID),
		zap.String("previous_status", string(oldStatus)),
		zap.Int("released_units", len(released)))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:       events.EventIncidentCancelled,
		IncidentID: incident.ID,
		Actor:      actorOperator,
		Payload: events.IncidentCancelledPayload{
			PreviousStatus:  oldStatus,
			ReleasedUnitIDs: unitIDs(released),
		},
	})
	return incident, nil
}

// releaseHeldResources frees the incident's unit reservations and retires its
// active allocation, writing both through to storage.
func (s *DispatchService) releaseHeldResources(ctx context.Context, incidentID string) []domain.ResourceUnit {
	released := s.pool.ReleaseForIncident(incidentID)
	for i := range released {
		s.persistUnit(ctx, released[i])
	}

	allocation, err := s.allocations.GetActiveByIncident(ctx, incidentID)
	if err == nil {
		if err := s.allocations.MarkReleased(ctx, allocation.ID); err != nil {
			s.logger.Warn("failed to mark allocation released",
				zap.String("allocation_id", allocation.ID),
				zap.Error(err))
		}
	}
	return released
}

func (s *DispatchService) persistUnit(ctx context.Context, unit domain.ResourceUnit) {
	if err := s.units.Update(ctx, &unit); err != nil {
		s.logger.Warn("failed to persist unit state",
			zap.String("unit_id", unit.ID),
			zap.Error(err))
	}
}

func instructionText(incident *domain.Incident, assignment domain.Assignment) string {
	eta := assignment.TravelTime.Round(time.Second)
	return fmt.Sprintf("Deploy to %s: %s incident %s, severity %d. Distance %.0f m, ETA %s.",
		locationLabel(incident.Location),
		incident.Category,
		incident.ExternalKey,
		incident.Severity,
		assignment.DistanceMeters,
		eta)
}

func locationLabel(location domain.Location) string {
	if location.Address != "" {
		return location.Address
	}
	return fmt.Sprintf("%.5f,%.5f", location.Latitude, location.Longitude)
}

func instructionUnitIDs(instructions []domain.DispatchInstruction) []string {
	ids := make([]string, 0, len(instructions))
	for _, instruction := range instructions {
		ids = append(ids, instruction.UnitID)
	}
	return ids
}

func unitIDs(units []domain.ResourceUnit) []string {
	ids := make([]string, 0, len(units))
	for _, unit := range units {
		ids = append(ids, unit.ID)
	}
	return ids
}
