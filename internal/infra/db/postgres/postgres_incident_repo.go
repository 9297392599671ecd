package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.IncidentRepository = (*incidentRepo)(nil)

type incidentRepo struct {
	pool *pgxpool.Pool
}

func NewIncidentRepo(pool *pgxpool.Pool) *incidentRepo {
	return &incidentRepo{pool: pool}
}

func (r *incidentRepo) Save(ctx context.Context, tx repository.Tx, inc *model.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	const q = `
INSERT INTO incidents (id, type, severity, status, details, created_at, resolved_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  details = EXCLUDED.details,
  resolved_at = EXCLUDED.resolved_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		inc.ID, inc.Type, string(inc.Severity), string(inc.Status), inc.Details, inc.CreatedAt, inc.ResolvedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *incidentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Incident, error) {
	const q = `
SELECT id, type, severity, status, details, created_at, resolved_at
  FROM incidents
 WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return inc, nil
}

func (r *incidentRepo) ListOpen(ctx context.Context, tx repository.Tx) ([]*model.Incident, error) {
	const q = `
SELECT id, type, severity, status, details, created_at, resolved_at
  FROM incidents
 WHERE status='open'
 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, inc)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *incidentRepo) LatestByTypeSince(ctx context.Context, tx repository.Tx, incidentType string, since time.Time) (*model.Incident, error) {
	const q = `
SELECT id, type, severity, status, details, created_at, resolved_at
  FROM incidents
 WHERE type=$1 AND created_at >= $2
 ORDER BY created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, incidentType, since)
	if err != nil {
		return nil, err
	}
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return inc, nil
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var (
		inc      model.Incident
		severity string
		status   string
	)
	if err := row.Scan(&inc.ID, &inc.Type, &severity, &status, &inc.Details, &inc.CreatedAt, &inc.ResolvedAt); err != nil {
		return nil, err
	}
	inc.Severity = model.IncidentSeverity(severity)
	inc.Status = model.IncidentStatus(status)
	return &inc, nil
}
