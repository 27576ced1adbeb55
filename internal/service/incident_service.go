package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/repository"
	"github.com/spec-kit/dispatch-service/internal/resources"
	"github.com/spec-kit/dispatch-service/pkg/util/errorutil"
)

// IncidentService is the read side: incident lookups, listings, allocation
// and dispatch detail, and the audit trail.
type IncidentService struct {
	incidents   repository.IncidentRepository
	allocations repository.AllocationRepository
	dispatches  repository.DispatchRepository
	history     repository.IncidentHistoryRepository
	pool        *resources.Pool
	logger      *zap.Logger
}

// IncidentQueryDependencies bundles collaborators for the read side.
type IncidentQueryDependencies struct {
	IncidentRepo   repository.IncidentRepository
	AllocationRepo repository.AllocationRepository
	DispatchRepo   repository.DispatchRepository
	HistoryRepo    repository.IncidentHistoryRepository
	Pool           *resources.Pool
	Logger         *zap.Logger
}

// IncidentDetail aggregates an incident with its active allocation and
// dispatch ticket when they exist.
type IncidentDetail struct {
	Incident   *domain.Incident
	Allocation *domain.Allocation
	Dispatch   *domain.DispatchTicket
	HeldUnits  []domain.ResourceUnit
}

// NewIncidentService constructs the service.
func NewIncidentService(deps IncidentQueryDependencies) *IncidentService {
	return &IncidentService{
		incidents:   deps.IncidentRepo,
		allocations: deps.AllocationRepo,
		dispatches:  deps.DispatchRepo,
		history:     deps.HistoryRepo,
		pool:        deps.Pool,
		logger:      deps.Logger,
	}
}

// GetIncident fetches one incident by ID.
func (s *IncidentService) GetIncident(ctx context.Context, incidentID string) (*domain.Incident, error) {
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	return incident, nil
}

// GetIncidentByKey fetches one incident by its operator-facing key.
func (s *IncidentService) GetIncidentByKey(ctx context.Context, key string) (*domain.Incident, error) {
	incident, err := s.incidents.GetByExternalKey(ctx, key)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	return incident, nil
}

// GetDetail returns the incident with its active allocation, dispatch ticket,
// and currently held units. Allocation and dispatch are nil when the incident
// has not reached those stages.
func (s *IncidentService) GetDetail(ctx context.Context, incidentID string) (*IncidentDetail, error) {
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}

	detail := &IncidentDetail{Incident: incident}
	if allocation, err := s.allocations.GetActiveByIncident(ctx, incidentID); err == nil {
		detail.Allocation = allocation
	}
	if dispatch, err := s.dispatches.GetByIncident(ctx, incidentID); err == nil {
		detail.Dispatch = dispatch
	}
	detail.HeldUnits = s.pool.HeldBy(incidentID)
	return detail, nil
}

// ListIncidents returns incidents matching the filter, most urgent first.
func (s *IncidentService) ListIncidents(ctx context.Context, filter repository.IncidentFilter) ([]domain.Incident, error) {
	incidents, err := s.incidents.List(ctx, filter)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	return incidents, nil
}

// ListHistory returns the incident's audit trail in chronological order.
func (s *IncidentService) ListHistory(ctx context.Context, incidentID string) ([]domain.IncidentHistory, error) {
	if _, err := s.incidents.GetByID(ctx, incidentID); err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	entries, err := s.history.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, errorutil.ToDomainError(err)
	}
	return entries, nil
}
