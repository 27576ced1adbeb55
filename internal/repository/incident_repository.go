package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// IncidentFilter captures incident search parameters.
type IncidentFilter struct {
	Statuses    []domain.IncidentStatus
	Categories  []domain.IncidentCategory
	MinSeverity *int
	MaxSeverity *int
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SearchTerm  *string
	Limit       int
	Offset      int
}

// IncidentRepository encapsulates incident persistence.
type IncidentRepository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	Update(ctx context.Context, incident *domain.Incident) error
	GetByID(ctx context.Context, id string) (*domain.Incident, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)
	ListByStatus(ctx context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error)
}

type incidentRepository struct {
	pool *pgxpool.Pool
}

// NewIncidentRepository instantiates repository.
func NewIncidentRepository(pool *pgxpool.Pool) IncidentRepository {
	return &incidentRepository{pool: pool}
}

func (r *incidentRepository) Create(ctx context.Context, incident *domain.Incident) error {
	const query = `
        INSERT INTO incidents (external_key, category, severity, confidence, degraded, latitude, longitude,
            address, description, indicators, caller_contact, status, queued_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		incident.ExternalKey,
		incident.Category,
		incident.Severity,
		incident.Confidence,
		incident.Degraded,
		incident.Location.Latitude,
		incident.Location.Longitude,
		incident.Location.Address,
		incident.Description,
		incident.Indicators,
		incident.CallerContact,
		incident.Status,
		incident.QueuedAt,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
}

func (r *incidentRepository) Update(ctx context.Context, incident *domain.Incident) error {
	const query = `
        UPDATE incidents SET category=$1, severity=$2, confidence=$3, degraded=$4, description=$5,
            indicators=$6, status=$7, queued_at=$8, dispatched_at=$9, closed_at=$10, updated_at=NOW()
        WHERE id=$11`
	cmd, err := r.pool.Exec(ctx, query,
		incident.Category,
		incident.Severity,
		incident.Confidence,
		incident.Degraded,
		incident.Description,
		incident.Indicators,
		incident.Status,
		incident.QueuedAt,
		incident.DispatchedAt,
		incident.ClosedAt,
		incident.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *incidentRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	const query = `
        SELECT id, external_key, category, severity, confidence, degraded, latitude, longitude, address,
               description, indicators, caller_contact, status, queued_at, dispatched_at, closed_at,
               created_at, updated_at
        FROM incidents WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *incidentRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Incident, error) {
	const query = `
        SELECT id, external_key, category, severity, confidence, degraded, latitude, longitude, address,
               description, indicators, caller_contact, status, queued_at, dispatched_at, closed_at,
               created_at, updated_at
        FROM incidents WHERE external_key=$1`
	return r.fetchSingle(ctx, query, key)
}

func (r *incidentRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Incident, error) {
	var incident domain.Incident
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&incident.ID,
		&incident.ExternalKey,
		&incident.Category,
		&incident.Severity,
		&incident.Confidence,
		&incident.Degraded,
		&incident.Location.Latitude,
		&incident.Location.Longitude,
		&incident.Location.Address,
		&incident.Description,
		&incident.Indicators,
		&incident.CallerContact,
		&incident.Status,
		&incident.QueuedAt,
		&incident.DispatchedAt,
		&incident.ClosedAt,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &incident, nil
}

func (r *incidentRepository) ListByStatus(ctx context.Context, statuses ...domain.IncidentStatus) ([]domain.Incident, error) {
	return r.List(ctx, IncidentFilter{Statuses: statuses, Limit: 1000})
}

func (r *incidentRepository) List(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error) {
	base := `SELECT id, external_key, category, severity, confidence, degraded, latitude, longitude, address,
                    description, indicators, caller_contact, status, queued_at, dispatched_at, closed_at,
                    created_at, updated_at
             FROM incidents`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			args = append(args, category)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.MinSeverity != nil {
		args = append(args, *filter.MinSeverity)
		clauses = append(clauses, fmt.Sprintf("severity >= $%d", len(args)))
	}
	if filter.MaxSeverity != nil {
		args = append(args, *filter.MaxSeverity)
		clauses = append(clauses, fmt.Sprintf("severity <= $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(description) LIKE %s OR LOWER(address) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY severity DESC, created_at ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIncidents(rows)
}

func scanIncidents(rows pgx.Rows) ([]domain.Incident, error) {
	var result []domain.Incident
	for rows.Next() {
		var incident domain.Incident
		if err := rows.Scan(
			&incident.ID,
			&incident.ExternalKey,
			&incident.Category,
			&incident.Severity,
			&incident.Confidence,
			&incident.Degraded,
			&incident.Location.Latitude,
			&incident.Location.Longitude,
			&incident.Location.Address,
			&incident.Description,
			&incident.Indicators,
			&incident.CallerContact,
			&incident.Status,
			&incident.QueuedAt,
			&incident.DispatchedAt,
			&incident.ClosedAt,
			&incident.CreatedAt,
			&incident.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, incident)
	}
	return result, rows.Err()
}
