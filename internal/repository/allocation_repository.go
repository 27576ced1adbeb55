package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// AllocationRepository persists matching results.
type AllocationRepository interface {
	Create(ctx context.Context, allocation *domain.Allocation) error
	GetByID(ctx context.Context, id string) (*domain.Allocation, error)
	GetActiveByIncident(ctx context.Context, incidentID string) (*domain.Allocation, error)
	MarkReleased(ctx context.Context, id string) error
}

type allocationRepository struct {
	pool *pgxpool.Pool
}

// NewAllocationRepository instantiates repository.
func NewAllocationRepository(pool *pgxpool.Pool) AllocationRepository {
	return &allocationRepository{pool: pool}
}

func (r *allocationRepository) Create(ctx context.Context, allocation *domain.Allocation) error {
	assignments, err := json.Marshal(allocation.Assignments)
	if err != nil {
		return fmt.Errorf("encode assignments: %w", err)
	}

	const query = `
        INSERT INTO allocations (incident_id, assignments, required_capacity, assigned_capacity,
            deficit, partial, personnel_count, estimated_cost)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		allocation.IncidentID,
		assignments,
		allocation.RequiredCapacity,
		allocation.AssignedCapacity,
		allocation.Deficit,
		allocation.Partial,
		allocation.PersonnelCount,
		allocation.EstimatedCost,
	).Scan(&allocation.ID, &allocation.CreatedAt)
}

func (r *allocationRepository) GetByID(ctx context.Context, id string) (*domain.Allocation, error) {
	const query = `
        SELECT id, incident_id, assignments, required_capacity, assigned_capacity, deficit, partial,
               personnel_count, estimated_cost, created_at, released_at
        FROM allocations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *allocationRepository) GetActiveByIncident(ctx context.Context, incidentID string) (*domain.Allocation, error) {
	const query = `
        SELECT id, incident_id, assignments, required_capacity, assigned_capacity, deficit, partial,
               personnel_count, estimated_cost, created_at, released_at
        FROM allocations WHERE incident_id=$1 AND released_at IS NULL
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, incidentID)
}

func (r *allocationRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Allocation, error) {
	var (
		allocation  domain.Allocation
		assignments []byte
	)
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&allocation.ID,
		&allocation.IncidentID,
		&assignments,
		&allocation.RequiredCapacity,
		&allocation.AssignedCapacity,
		&allocation.Deficit,
		&allocation.Partial,
		&allocation.PersonnelCount,
		&allocation.EstimatedCost,
		&allocation.CreatedAt,
		&allocation.ReleasedAt,
	); err != nil {
		return nil, err
	}
	if len(assignments) > 0 {
		if err := json.Unmarshal(assignments, &allocation.Assignments); err != nil {
			return nil, fmt.Errorf("decode assignments: %w", err)
		}
	}
	return &allocation, nil
}

func (r *allocationRepository) MarkReleased(ctx context.Context, id string) error {
	const query = `UPDATE allocations SET released_at=NOW() WHERE id=$1 AND released_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
