package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// In-memory implementations back the service when no POSTGRES_DSN is set and
// carry the repository contract in tests. Not-found is reported with
// pgx.ErrNoRows so the error mapping stays identical across backends.

type memoryIncidentRepository struct {
	mu    sync.RWMutex
	byID  map[string]domain.Incident
	byKey map[string]string
}

// NewMemoryIncidentRepository builds an in-memory incident store.
func NewMemoryIncidentRepository() IncidentRepository {
	return &memoryIncidentRepository{
		byID:  make(map[string]domain.Incident),
		byKey: make(map[string]string),
	}
}

func (r *memoryIncidentRepository) Create(ctx context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now
	r.byID[incident.ID] = cloneIncident(*incident)
	r.byKey[incident.ExternalKey] = incident.ID
	return nil
}

func (r *memoryIncidentRepository) Update(ctx context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[incident.ID]; !exists {
		return pgx.ErrNoRows
	}
	incident.UpdatedAt = time.Now().UTC()
	r.byID[incident.ID] = cloneIncident(*incident)
	return nil
}

func (r *memoryIncidentRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	incident, exists := r.byID[id]
	if !exists {
		return nil, pgx.ErrNoRows
	}
	out := cloneIncident(incident)
	return &out, nil
}

func (r *memoryIncidentRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Incident, error) {
	r.mu.RLock()
	id, exists := r.byKey[key]
	r.mu.RUnlock()
	if !exists {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *memoryIncidentRepository) ListByStatus(ctx context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error) {
	return r.List(ctx, IncidentFilter{Statuses: statuses, Limit: 1000})
}

func (r *memoryIncidentRepository) List(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	r.mu.RLock()
	candidates := make([]domain.Incident, 0, len(r.byID))
	for _, incident := range r.byID {
		if matchesIncidentFilter(incident, filter) {
			candidates = append(candidates, cloneIncident(incident))
		}
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Severity != candidates[j].Severity {
			return candidates[i].Severity > candidates[j].Severity
		}
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
		}
		return candidates[i].ID < candidates[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(candidates) {
		return nil, nil
	}
	end := offset + limit
	if end > len(candidates) {
		end = len(candidates)
	}
	return candidates[offset:end], nil
}

func matchesIncidentFilter(incident domain.Incident, filter IncidentFilter) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, incident.Status) {
		return false
	}
	if len(filter.Categories) > 0 && !containsCategory(filter.Categories, incident.Category) {
		return false
	}
	if filter.MinSeverity != nil && incident.Severity < *filter.MinSeverity {
		return false
	}
	if filter.MaxSeverity != nil && incident.Severity > *filter.MaxSeverity {
		return false
	}
	if filter.CreatedFrom != nil && incident.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && incident.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" {
			haystack := strings.ToLower(incident.Description + " " + incident.Location.Address)
			if !strings.Contains(haystack, term) {
				return false
			}
		}
	}
	return true
}

func containsStatus(list []domain.IncidentStatus, status domain.IncidentStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

func containsCategory(list []domain.IncidentCategory, category domain.IncidentCategory) bool {
	for _, candidate := range list {
		if candidate == category {
			return true
		}
	}
	return false
}

func cloneIncident(incident domain.Incident) domain.Incident {
	out := incident
	out.Indicators = append([]string(nil), incident.Indicators...)
	if incident.CallerContact != nil {
		contact := *incident.CallerContact
		out.CallerContact = &contact
	}
	out.QueuedAt = cloneTime(incident.QueuedAt)
	out.DispatchedAt = cloneTime(incident.DispatchedAt)
	out.ClosedAt = cloneTime(incident.ClosedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type memoryUnitRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.ResourceUnit
}

// NewMemoryUnitRepository builds an in-memory unit store.
func NewMemoryUnitRepository() UnitRepository {
	return &memoryUnitRepository{byID: make(map[string]domain.ResourceUnit)}
}

func (r *memoryUnitRepository) Create(ctx context.Context, unit *domain.ResourceUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	unit.CreatedAt = now
	unit.UpdatedAt = now
	r.byID[unit.ID] = cloneUnit(*unit)
	return nil
}

func (r *memoryUnitRepository) Update(ctx context.Context, unit *domain.ResourceUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[unit.ID]; !exists {
		return pgx.ErrNoRows
	}
	unit.UpdatedAt = time.Now().UTC()
	r.byID[unit.ID] = cloneUnit(*unit)
	return nil
}

func (r *memoryUnitRepository) GetByID(ctx context.Context, id string) (*domain.ResourceUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unit, exists := r.byID[id]
	if !exists {
		return nil, pgx.ErrNoRows
	}
	out := cloneUnit(unit)
	return &out, nil
}

func (r *memoryUnitRepository) List(ctx context.Context) ([]domain.ResourceUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ResourceUnit, 0, len(r.byID))
	for _, unit := range r.byID {
		out = append(out, cloneUnit(unit))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallSign != out[j].CallSign {
			return out[i].CallSign < out[j].CallSign
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneUnit(unit domain.ResourceUnit) domain.ResourceUnit {
	out := unit
	if unit.ActiveIncidentID != nil {
		holder := *unit.ActiveIncidentID
		out.ActiveIncidentID = &holder
	}
	return out
}

type memoryAllocationRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.Allocation
}

// NewMemoryAllocationRepository builds an in-memory allocation store.
func NewMemoryAllocationRepository() AllocationRepository {
	return &memoryAllocationRepository{byID: make(map[string]domain.Allocation)}
}

func (r *memoryAllocationRepository) Create(ctx context.Context, allocation *domain.Allocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if allocation.ID == "" {
		allocation.ID = uuid.NewString()
	}
	allocation.CreatedAt = time.Now().UTC()
	r.byID[allocation.ID] = cloneAllocation(*allocation)
	return nil
}

func (r *memoryAllocationRepository) GetByID(ctx context.Context, id string) (*domain.Allocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allocation, exists := r.byID[id]
	if !exists {
		return nil, pgx.ErrNoRows
	}
	out := cloneAllocation(allocation)
	return &out, nil
}

func (r *memoryAllocationRepository) GetActiveByIncident(ctx context.Context, incidentID string) (*domain.Allocation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found  bool
		newest domain.Allocation
	)
	for _, allocation := range r.byID {
		if allocation.IncidentID != incidentID || allocation.ReleasedAt != nil {
			continue
		}
		if !found || allocation.CreatedAt.After(newest.CreatedAt) {
			newest = allocation
			found = true
		}
	}
	if !found {
		return nil, pgx.ErrNoRows
	}
	out := cloneAllocation(newest)
	return &out, nil
}

func (r *memoryAllocationRepository) MarkReleased(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	allocation, exists := r.byID[id]
	if !exists || allocation.ReleasedAt != nil {
		return pgx.ErrNoRows
	}
	now := time.Now().UTC()
	allocation.ReleasedAt = &now
	r.byID[id] = allocation
	return nil
}

func cloneAllocation(allocation domain.Allocation) domain.Allocation {
	out := allocation
	out.Assignments = append([]domain.Assignment(nil), allocation.Assignments...)
	out.ReleasedAt = cloneTime(allocation.ReleasedAt)
	return out
}

type memoryDispatchRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.DispatchTicket
}

// NewMemoryDispatchRepository builds an in-memory dispatch ticket store.
func NewMemoryDispatchRepository() DispatchRepository {
	return &memoryDispatchRepository{byID: make(map[string]domain.DispatchTicket)}
}

func (r *memoryDispatchRepository) Create(ctx context.Context, ticket *domain.DispatchTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	r.byID[ticket.ID] = cloneDispatch(*ticket)
	return nil
}

func (r *memoryDispatchRepository) GetByIncident(ctx context.Context, incidentID string) (*domain.DispatchTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found  bool
		newest domain.DispatchTicket
	)
	for _, ticket := range r.byID {
		if ticket.IncidentID != incidentID {
			continue
		}
		if !found || ticket.DispatchedAt.After(newest.DispatchedAt) {
			newest = ticket
			found = true
		}
	}
	if !found {
		return nil, pgx.ErrNoRows
	}
	out := cloneDispatch(newest)
	return &out, nil
}

func cloneDispatch(ticket domain.DispatchTicket) domain.DispatchTicket {
	out := ticket
	out.Instructions = append([]domain.DispatchInstruction(nil), ticket.Instructions...)
	return out
}

type memoryHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.IncidentHistory
}

// NewMemoryHistoryRepository builds an in-memory audit store.
func NewMemoryHistoryRepository() IncidentHistoryRepository {
	return &memoryHistoryRepository{}
}

func (r *memoryHistoryRepository) Create(ctx context.Context, history *domain.IncidentHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	history.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *memoryHistoryRepository) ListByIncident(ctx context.Context, incidentID string) ([]domain.IncidentHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.IncidentHistory
	for _, entry := range r.entries {
		if entry.IncidentID == incidentID {
			result = append(result, entry)
		}
	}
	return result, nil
}
