package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.JobEventRepository = (*jobEventRepo)(nil)

type jobEventRepo struct {
	pool *pgxpool.Pool
}

func NewJobEventRepo(pool *pgxpool.Pool) *jobEventRepo {
	return &jobEventRepo{pool: pool}
}

func (r *jobEventRepo) Append(ctx context.Context, tx repository.Tx, event *model.JobEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	var meta []byte
	if event.Meta != nil {
		b, err := json.Marshal(event.Meta)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		meta = b
	}

	const q = `
INSERT INTO job_events (id, job_id, stage, type, message, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		event.ID, event.JobID, string(event.Stage), string(event.Type), event.Message, meta, event.CreatedAt)
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

func (r *jobEventRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.JobEvent, error) {
	// ULIDs sort lexicographically in creation order.
	const q = `
SELECT id, job_id, stage, type, message, meta, created_at
  FROM job_events
 WHERE job_id=$1
 ORDER BY id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.JobEvent
	for rows.Next() {
		var (
			ev    model.JobEvent
			stage string
			typ   string
			meta  []byte
		)
		if err := rows.Scan(&ev.ID, &ev.JobID, &stage, &typ, &ev.Message, &meta, &ev.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ev.Stage = model.Stage(stage)
		ev.Type = model.JobEventType(typ)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Meta); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &ev)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
