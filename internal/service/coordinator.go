package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/events"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resources"
	"github.com/spec-kit/dispatch-service/internal/triage"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// Coordinator drives incidents through the pipeline: intake, triage queue,
// matching, dispatch. Workers drain the queue in strict priority order and
// block when the fleet cannot serve the head entry; releases, registrations,
// and a periodic sweep wake them back up.
type Coordinator struct {
	assessment *AssessmentService
	matching   *MatchingService
	dispatch   *DispatchService

	incidents   repository.IncidentRepository
	units       repository.UnitRepository
	allocations repository.AllocationRepository
	history     repository.IncidentHistoryRepository

	queue      *triage.Queue
	pool       *resources.Pool
	locks      *IncidentLocks
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.CoordinatorConfig

	work chan struct{}
}

// CoordinatorDependencies bundles collaborators for the coordinator.
type CoordinatorDependencies struct {
	Assessment *AssessmentService
	Matching   *MatchingService
	Dispatch   *DispatchService

	IncidentRepo   repository.IncidentRepository
	UnitRepo       repository.UnitRepository
	AllocationRepo repository.AllocationRepository
	HistoryRepo    repository.IncidentHistoryRepository

	Queue      *triage.Queue
	Pool       *resources.Pool
	Locks      *IncidentLocks
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.CoordinatorConfig
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(deps CoordinatorDependencies) *Coordinator {
	return &Coordinator{
		assessment:  deps.Assessment,
		matching:    deps.Matching,
		dispatch:    deps.Dispatch,
		incidents:   deps.IncidentRepo,
		units:       deps.UnitRepo,
		allocations: deps.AllocationRepo,
		history:     deps.HistoryRepo,
		queue:       deps.Queue,
		pool:        deps.Pool,
		locks:       deps.Locks,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		cfg:         deps.Config,
		work:        make(chan struct{}, 1),
	}
}

// Submit runs intake for a report and places the resulting incident in the
// triage queue. It returns once the incident is durably queued; allocation
// and dispatch happen asynchronously.
func (c *Coordinator) Submit(ctx context.Context, input ReportInput) (*domain.Incident, error) {
	incident, err := c.assessment.Assess(ctx, input)
	if err != nil {
		return nil, err
	}

	release := c.locks.Acquire(incident.ID)
	defer release()

	now := time.Now().UTC()
	incident.Status = domain.IncidentStatusQueued
	incident.QueuedAt = &now
	if err := c.incidents.Update(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if err := c.queue.Enqueue(incident.ID, incident.Severity, now); err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	if err := recordStatusChange(ctx, c.history, actorCoordinator, incident.ID, domain.IncidentStatusNew, incident.Status, "accepted for triage"); err != nil {
		c.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
	}

	depth := c.queue.Len()
	c.metrics.RecordStage(observability.StageQueued)
	c.metrics.SetQueueDepth(depth)
	c.logger.Info("incident queued",
		zap.String("incident_id", incident.ID),
		zap.Int("severity", incident.Severity),
		zap.String("band", string(incident.Band())),
		zap.Int("queue_depth", depth))

	publishEvent(ctx, c.dispatcher, events.Event{
		Type:       events.EventIncidentQueued,
		IncidentID: incident.ID,
		Actor:      actorCoordinator,
		Payload: events.IncidentQueuedPayload{
			Severity:   incident.Severity,
			QueueDepth: depth,
		},
	})

	c.signal()
	return incident, nil
}

// Reprioritize changes an incident's severity mid-flight. Queued incidents
// are repositioned without losing accrued waiting time; incidents already
// past the queue keep the corrected severity on record. Terminal incidents
// reject the change.
func (c *Coordinator) Reprioritize(ctx context.Context, incidentID string, newSeverity int) (*domain.Incident, error) {
	if newSeverity < domain.MinSeverity || newSeverity > domain.MaxSeverity {
		return nil, errorutil.NewValidationError("severity out of range", map[string]any{
			"severity": newSeverity,
			"min":      domain.MinSeverity,
			"max":      domain.MaxSeverity,
		})
	}

	release := c.locks.Acquire(incidentID)
	defer release()

	incident, err := c.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if incident.Terminal() {
		return nil, errorutil.NewInvalidStateTransition("incident", string(incident.Status), string(incident.Status))
	}
	if incident.Severity == newSeverity {
		return incident, nil
	}

	oldSeverity := incident.Severity
	incident.Severity = newSeverity
	if err := c.incidents.Update(ctx, incident); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	if incident.Status == domain.IncidentStatusQueued {
		if err := c.queue.Reprioritize(incidentID, newSeverity); err != nil {
			// Entry is mid-processing; the worker reloads the incident and
			// sees the new severity.
			c.logger.Debug("incident not in queue during reprioritize",
				zap.String("incident_id", incidentID))
		}
	}
	if err := recordSeverityChange(ctx, c.history, actorOperator, incidentID, oldSeverity, newSeverity); err != nil {
		c.logger.Warn("failed to record severity change", zap.String("incident_id", incidentID), zap.Error(err))
	}

	c.logger.Info("incident reprioritized",
		zap.String("incident_id", incidentID),
		zap.Int("old_severity", oldSeverity),
		zap.Int("new_severity", newSeverity),
		zap.String("band", string(incident.Band())))

	publishEvent(ctx, c.dispatcher, events.Event{
		Type:       events.EventIncidentReprioritized,
		IncidentID: incidentID,
		Actor:      actorOperator,
		Payload: events.IncidentReprioritizedPayload{
			OldSeverity: oldSeverity,
			NewSeverity: newSeverity,
		},
	})

	c.signal()
	return incident, nil
}

// Recover rebuilds in-memory state from storage at startup: the fleet, the
// triage queue, and allocations that were committed but never dispatched.
func (c *Coordinator) Recover(ctx context.Context) error {
	units, err := c.units.List(ctx)
	if err != nil {
		return errorutil.ToDomainError(err)
	}
	c.pool.Load(units)

	pending, err := c.incidents.ListByStatus(ctx, domain.IncidentStatusNew, domain.IncidentStatusQueued)
	if err != nil {
		return errorutil.ToDomainError(err)
	}
	for i := range pending {
		c.enqueueRecovered(ctx, &pending[i])
	}

	allocated, err := c.incidents.ListByStatus(ctx, domain.IncidentStatusAllocated)
	if err != nil {
		return errorutil.ToDomainError(err)
	}
	for i := range allocated {
		c.resumeAllocated(ctx, &allocated[i])
	}

	depth := c.queue.Len()
	c.metrics.SetQueueDepth(depth)
	c.logger.Info("coordinator state recovered",
		zap.Int("units", len(units)),
		zap.Int("queued", depth),
		zap.Int("resumed_allocations", len(allocated)))
	c.signal()
	return nil
}

// Run starts the drain workers plus the wake forwarders and blocks until the
// context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.pool.Notifications():
				c.signal()
			}
		}
	})
	group.Go(func() error {
		ticker := time.NewTicker(c.cfg.RequeueInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.signal()
			}
		}
	})

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-c.work:
					c.drain(ctx)
				}
			}
		})
	}

	c.logger.Info("coordinator running", zap.Int("workers", workers))
	return group.Wait()
}

// QueueSnapshot returns the queue contents in service order.
func (c *Coordinator) QueueSnapshot() []triage.Entry {
	return c.queue.Snapshot()
}

// QueueDepth returns the number of incidents awaiting allocation.
func (c *Coordinator) QueueDepth() int {
	return c.queue.Len()
}

// drain pops and processes entries until the queue is empty or its head
// cannot be served with current capacity.
func (c *Coordinator) drain(ctx context.Context) {
	for ctx.Err() == nil {
		entry, ok := c.queue.Pop()
		if !ok {
			return
		}
		c.metrics.SetQueueDepth(c.queue.Len())
		if c.queue.Len() > 0 {
			// More work behind this entry; wake a sibling worker.
			c.signal()
		}
		if !c.processEntry(ctx, entry) {
			return
		}
	}
}

// processEntry runs one incident through matching and dispatch under its
// lock. The return value reports whether the worker should keep draining.
func (c *Coordinator) processEntry(ctx context.Context, entry triage.Entry) bool {
	release := c.locks.Acquire(entry.IncidentID)
	defer release()

	incident, err := c.incidents.GetByID(ctx, entry.IncidentID)
	if err != nil {
		c.logger.Error("failed to load queued incident",
			zap.String("incident_id", entry.IncidentID),
			zap.Error(err))
		return true
	}
	if incident.Status != domain.IncidentStatusQueued {
		// Cancelled or already advanced while the entry was in flight.
		c.logger.Debug("dropping stale queue entry",
			zap.String("incident_id", incident.ID),
			zap.String("status", string(incident.Status)))
		return true
	}

	allocation, err := c.matching.Match(ctx, incident)
	if err != nil {
		if errorutil.IsNoResourcesAvailable(err) {
			c.requeue(incident, entry.EnqueuedAt)
			c.logger.Info("holding incident for capacity",
				zap.String("incident_id", incident.ID),
				zap.Int("severity", incident.Severity))
			return false
		}
		c.logger.Error("matching failed",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
		c.requeue(incident, entry.EnqueuedAt)
		return false
	}

	if _, err := c.dispatch.Dispatch(ctx, incident, allocation); err != nil {
		c.abortAllocation(ctx, incident, allocation, entry.EnqueuedAt, err)
		return false
	}
	return true
}

// abortAllocation unwinds a committed allocation whose dispatch failed:
// reservations are released, the allocation is retired, and the incident
// returns to the queue without losing its accrued waiting time.
func (c *Coordinator) abortAllocation(ctx context.Context, incident *domain.Incident, allocation *domain.Allocation, enqueuedAt time.Time, cause error) {
	c.logger.Warn("dispatch failed, returning incident to queue",
		zap.String("incident_id", incident.ID),
		zap.String("allocation_id", allocation.ID),
		zap.Error(cause))

	c.pool.ReleaseForIncident(incident.ID)
	if err := c.allocations.MarkReleased(ctx, allocation.ID); err != nil {
		c.logger.Warn("failed to mark allocation released",
			zap.String("allocation_id", allocation.ID),
			zap.Error(err))
	}

	oldStatus := incident.Status
	incident.Status = domain.IncidentStatusQueued
	if err := c.incidents.Update(ctx, incident); err != nil {
		c.logger.Error("failed to restore incident to queued",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
		return
	}
	if err := recordStatusChange(ctx, c.history, actorSystem, incident.ID, oldStatus, incident.Status, "dispatch aborted, returned to queue"); err != nil {
		c.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
	}
	c.requeue(incident, enqueuedAt)
}

// requeue puts the incident back with its original enqueue time so waiting
// time keeps accruing across retries.
func (c *Coordinator) requeue(incident *domain.Incident, enqueuedAt time.Time) {
	if err := c.queue.Enqueue(incident.ID, incident.Severity, enqueuedAt); err != nil {
		c.logger.Warn("failed to requeue incident",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
		return
	}
	c.metrics.RecordStage(observability.StageAllocationRetries)
	c.metrics.SetQueueDepth(c.queue.Len())
}

// enqueueRecovered restores one pre-allocation incident into the queue.
// Incidents still in intake are promoted to queued first.
func (c *Coordinator) enqueueRecovered(ctx context.Context, incident *domain.Incident) {
	enqueuedAt := incident.CreatedAt
	if incident.Status == domain.IncidentStatusNew {
		now := time.Now().UTC()
		incident.Status = domain.IncidentStatusQueued
		incident.QueuedAt = &now
		if err := c.incidents.Update(ctx, incident); err != nil {
			c.logger.Error("failed to promote recovered incident",
				zap.String("incident_id", incident.ID),
				zap.Error(err))
			return
		}
		if err := recordStatusChange(ctx, c.history, actorSystem, incident.ID, domain.IncidentStatusNew, incident.Status, "recovered at startup"); err != nil {
			c.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
		}
		enqueuedAt = now
	} else if incident.QueuedAt != nil {
		enqueuedAt = *incident.QueuedAt
	}

	if err := c.queue.Enqueue(incident.ID, incident.Severity, enqueuedAt); err != nil {
		c.logger.Warn("failed to enqueue recovered incident",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
	}
}

// resumeAllocated finishes the pipeline for incidents that crashed between
// allocation and dispatch. With no retrievable allocation the reservation is
// released and the incident rejoins the queue.
func (c *Coordinator) resumeAllocated(ctx context.Context, incident *domain.Incident) {
	release := c.locks.Acquire(incident.ID)
	defer release()

	enqueuedAt := incident.CreatedAt
	if incident.QueuedAt != nil {
		enqueuedAt = *incident.QueuedAt
	}

	allocation, err := c.allocations.GetActiveByIncident(ctx, incident.ID)
	if err != nil {
		c.logger.Warn("allocated incident has no active allocation, requeueing",
			zap.String("incident_id", incident.ID),
			zap.Error(err))
		c.pool.ReleaseForIncident(incident.ID)
		oldStatus := incident.Status
		incident.Status = domain.IncidentStatusQueued
		if err := c.incidents.Update(ctx, incident); err != nil {
			c.logger.Error("failed to restore incident to queued",
				zap.String("incident_id", incident.ID),
				zap.Error(err))
			return
		}
		if err := recordStatusChange(ctx, c.history, actorSystem, incident.ID, oldStatus, incident.Status, "allocation lost, recovered at startup"); err != nil {
			c.logger.Warn("failed to record status change", zap.String("incident_id", incident.ID), zap.Error(err))
		}
		c.requeue(incident, enqueuedAt)
		return
	}

	if _, err := c.dispatch.Dispatch(ctx, incident, allocation); err != nil {
		c.abortAllocation(ctx, incident, allocation, enqueuedAt, err)
	}
}

func (c *Coordinator) signal() {
	select {
	case c.work <- struct{}{}:
	default:
	}
}
