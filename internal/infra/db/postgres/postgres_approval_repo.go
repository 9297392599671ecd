package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.ApprovalRepository = (*approvalRepo)(nil)

type approvalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *approvalRepo {
	return &approvalRepo{pool: pool}
}

func (r *approvalRepo) Save(ctx context.Context, tx repository.Tx, a *model.Approval) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `
INSERT INTO approvals (id, job_id, action_kind, approved, actor, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.JobID, string(a.ActionKind), a.Approved, a.Actor, a.Reason, a.CreatedAt)
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

func (r *approvalRepo) LatestByJobAndKind(ctx context.Context, tx repository.Tx, jobID string, kind model.ActionKind) (*model.Approval, error) {
	const q = `
SELECT id, job_id, action_kind, approved, actor, reason, created_at
  FROM approvals
 WHERE job_id=$1 AND action_kind=$2
 ORDER BY created_at DESC, id DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, jobID, string(kind))
	if err != nil {
		return nil, err
	}
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

func (r *approvalRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Approval, error) {
	const q = `
SELECT id, job_id, action_kind, approved, actor, reason, created_at
  FROM approvals
 WHERE job_id=$1
 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanApproval(row rowScanner) (*model.Approval, error) {
	var (
		a    model.Approval
		kind string
	)
	if err := row.Scan(&a.ID, &a.JobID, &kind, &a.Approved, &a.Actor, &a.Reason, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ActionKind = model.ActionKind(kind)
	return &a, nil
}
