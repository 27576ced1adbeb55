package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// IncidentHistoryRepository stores audit entries.
type IncidentHistoryRepository interface {
	Create(ctx context.Context, history *domain.IncidentHistory) error
	ListByIncident(ctx context.Context, incidentID string) ([]domain.IncidentHistory, error)
}

type incidentHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentHistoryRepository builds repository.
func NewIncidentHistoryRepository(pool *pgxpool.Pool) IncidentHistoryRepository {
	return &incidentHistoryRepository{pool: pool}
}

func (r *incidentHistoryRepository) Create(ctx context.Context, history *domain.IncidentHistory) error {
	const query = `
        INSERT INTO incident_history (incident_id, change_type, actor, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.IncidentID,
		history.ChangeType,
		history.Actor,
		history.OldValue,
		history.NewValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *incidentHistoryRepository) ListByIncident(ctx context.Context, incidentID string) ([]domain.IncidentHistory, error) {
	const query = `
        SELECT id, incident_id, change_type, actor, old_value, new_value, created_at
        FROM incident_history WHERE incident_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IncidentHistory
	for rows.Next() {
		var history domain.IncidentHistory
		if err := rows.Scan(
			&history.ID,
			&history.IncidentID,
			&history.ChangeType,
			&history.Actor,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
