package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.CostLedgerRepository = (*costLedgerRepo)(nil)

type costLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewCostLedgerRepo(pool *pgxpool.Pool) *costLedgerRepo {
	return &costLedgerRepo{pool: pool}
}

func (r *costLedgerRepo) Append(ctx context.Context, tx repository.Tx, entry *model.CostLedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const q = `
INSERT INTO cost_ledger (id, job_id, model, prompt_tokens, completion_tokens, usd, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := execSQL(ctx, r.pool, tx, q,
		entry.ID, entry.JobID, entry.Model, entry.PromptTokens, entry.CompletionTokens, entry.USD, entry.CreatedAt)
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

func (r *costLedgerRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.CostLedgerEntry, error) {
	const q = `
SELECT id, job_id, model, prompt_tokens, completion_tokens, usd, created_at
  FROM cost_ledger
 WHERE job_id=$1
 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.CostLedgerEntry
	for rows.Next() {
		var e model.CostLedgerEntry
		if err := rows.Scan(&e.ID, &e.JobID, &e.Model, &e.PromptTokens, &e.CompletionTokens, &e.USD, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *costLedgerRepo) SumByJob(ctx context.Context, tx repository.Tx, jobID string) (float64, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COALESCE(SUM(usd), 0) FROM cost_ledger WHERE job_id=$1;`, jobID)
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *costLedgerRepo) SumBetween(ctx context.Context, tx repository.Tx, from, to time.Time) (float64, error) {
	const q = `SELECT COALESCE(SUM(usd), 0) FROM cost_ledger WHERE created_at >= $1 AND created_at < $2;`
	row, err := pickRow(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return 0, err
	}
	var sum float64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
