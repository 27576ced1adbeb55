package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// DispatchRepository persists issued dispatch tickets.
type DispatchRepository interface {
	Create(ctx context.Context, ticket *domain.DispatchTicket) error
	GetByIncident(ctx context.Context, incidentID string) (*domain.DispatchTicket, error)
}

type dispatchRepository struct {
	pool *pgxpool.Pool
}

// NewDispatchRepository instantiates repository.
func NewDispatchRepository(pool *pgxpool.Pool) DispatchRepository {
	return &dispatchRepository{pool: pool}
}

func (r *dispatchRepository) Create(ctx context.Context, ticket *domain.DispatchTicket) error {
	instructions, err := json.Marshal(ticket.Instructions)
	if err != nil {
		return fmt.Errorf("encode instructions: %w", err)
	}

	const query = `
        INSERT INTO dispatches (external_key, incident_id, allocation_id, instructions, dispatched_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.IncidentID,
		ticket.AllocationID,
		instructions,
		ticket.DispatchedAt,
	).Scan(&ticket.ID)
}

func (r *dispatchRepository) GetByIncident(ctx context.Context, incidentID string) (*domain.DispatchTicket, error) {
	const query = `
        SELECT id, external_key, incident_id, allocation_id, instructions, dispatched_at
        FROM dispatches WHERE incident_id=$1
        ORDER BY dispatched_at DESC LIMIT 1`
	var (
		ticket       domain.DispatchTicket
		instructions []byte
	)
	if err := r.pool.QueryRow(ctx, query, incidentID).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.IncidentID,
		&ticket.AllocationID,
		&instructions,
		&ticket.DispatchedAt,
	); err != nil {
		return nil, err
	}
	if len(instructions) > 0 {
		if err := json.Unmarshal(instructions, &ticket.Instructions); err != nil {
			return nil, fmt.Errorf("decode instructions: %w", err)
		}
	}
	return &ticket, nil
}
