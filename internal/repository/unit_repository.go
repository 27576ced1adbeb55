package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// UnitRepository persists the unit registry behind the in-memory pool.
type UnitRepository interface {
	Create(ctx context.Context, unit *domain.ResourceUnit) error
	Update(ctx context.Context, unit *domain.ResourceUnit) error
	GetByID(ctx context.Context, id string) (*domain.ResourceUnit, error)
	List(ctx context.Context) ([]domain.ResourceUnit, error)
}

type unitRepository struct {
	pool *pgxpool.Pool
}

// NewUnitRepository instantiates repository.
func NewUnitRepository(pool *pgxpool.Pool) UnitRepository {
	return &unitRepository{pool: pool}
}

func (r *unitRepository) Create(ctx context.Context, unit *domain.ResourceUnit) error {
	const query = `
        INSERT INTO units (call_sign, unit_type, latitude, longitude, address, readiness, capacity, active_incident_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		unit.CallSign,
		unit.Type,
		unit.Location.Latitude,
		unit.Location.Longitude,
		unit.Location.Address,
		unit.Readiness,
		unit.Capacity,
		unit.ActiveIncidentID,
	).Scan(&unit.ID, &unit.CreatedAt, &unit.UpdatedAt)
}

func (r *unitRepository) Update(ctx context.Context, unit *domain.ResourceUnit) error {
	const query = `
        UPDATE units SET latitude=$1, longitude=$2, address=$3, readiness=$4, capacity=$5,
            active_incident_id=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.pool.Exec(ctx, query,
		unit.Location.Latitude,
		unit.Location.Longitude,
		unit.Location.Address,
		unit.Readiness,
		unit.Capacity,
		unit.ActiveIncidentID,
		unit.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *unitRepository) GetByID(ctx context.Context, id string) (*domain.ResourceUnit, error) {
	const query = `
        SELECT id, call_sign, unit_type, latitude, longitude, address, readiness, capacity,
               active_incident_id, created_at, updated_at
        FROM units WHERE id=$1`
	var unit domain.ResourceUnit
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&unit.ID,
		&unit.CallSign,
		&unit.Type,
		&unit.Location.Latitude,
		&unit.Location.Longitude,
		&unit.Location.Address,
		&unit.Readiness,
		&unit.Capacity,
		&unit.ActiveIncidentID,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *unitRepository) List(ctx context.Context) ([]domain.ResourceUnit, error) {
	const query = `
        SELECT id, call_sign, unit_type, latitude, longitude, address, readiness, capacity,
               active_incident_id, created_at, updated_at
        FROM units ORDER BY call_sign ASC, id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ResourceUnit
	for rows.Next() {
		var unit domain.ResourceUnit
		if err := rows.Scan(
			&unit.ID,
			&unit.CallSign,
			&unit.Type,
			&unit.Location.Latitude,
			&unit.Location.Longitude,
			&unit.Location.Address,
			&unit.Readiness,
			&unit.Capacity,
			&unit.ActiveIncidentID,
			&unit.CreatedAt,
			&unit.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, unit)
	}
	return result, rows.Err()
}
