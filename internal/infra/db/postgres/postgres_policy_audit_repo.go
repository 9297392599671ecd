package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.PolicyAuditRepository = (*policyAuditRepo)(nil)

type policyAuditRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyAuditRepo(pool *pgxpool.Pool) *policyAuditRepo {
	return &policyAuditRepo{pool: pool}
}

func (r *policyAuditRepo) Append(ctx context.Context, tx repository.Tx, entry *model.PolicyAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const q = `
INSERT INTO policy_audit (id, job_id, decision, rule_id, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := execSQL(ctx, r.pool, tx, q,
		entry.ID, entry.JobID, string(entry.Decision), string(entry.RuleID), entry.Details, entry.CreatedAt)
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

func (r *policyAuditRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.PolicyAuditEntry, error) {
	const q = `
SELECT id, job_id, decision, rule_id, details, created_at
  FROM policy_audit
 WHERE job_id=$1
 ORDER BY created_at ASC, id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.PolicyAuditEntry
	for rows.Next() {
		var (
			e        model.PolicyAuditEntry
			decision string
			rule     string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &decision, &rule, &e.Details, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Decision = model.PolicyDecision(decision)
		e.RuleID = model.PolicyRule(rule)
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
