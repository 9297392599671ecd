package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const jobColumns = `
id, repo, issue_number, title, base_branch, risk_class, status, model_profile,
requires_approval, allowed_paths, acceptance_commands, artifact_contract,
max_minutes, max_iterations, max_usd, created_by, created_at, updated_at,
current_stage, failure_reason, pr_url, cost_usd, iterations, attempts,
next_attempt_at, started_at, pending_action`

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO jobs (
  id, repo, issue_number, title, base_branch, risk_class, status, model_profile,
  requires_approval, allowed_paths, acceptance_commands, artifact_contract,
  max_minutes, max_iterations, max_usd, created_by, created_at, updated_at,
  current_stage, failure_reason, pr_url, cost_usd, iterations, attempts,
  next_attempt_at, started_at, pending_action
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  requires_approval = EXCLUDED.requires_approval,
  allowed_paths = EXCLUDED.allowed_paths,
  acceptance_commands = EXCLUDED.acceptance_commands,
  artifact_contract = EXCLUDED.artifact_contract,
  updated_at = EXCLUDED.updated_at,
  current_stage = EXCLUDED.current_stage,
  failure_reason = EXCLUDED.failure_reason,
  pr_url = EXCLUDED.pr_url,
  cost_usd = EXCLUDED.cost_usd,
  iterations = EXCLUDED.iterations,
  attempts = EXCLUDED.attempts,
  next_attempt_at = EXCLUDED.next_attempt_at,
  started_at = EXCLUDED.started_at,
  pending_action = EXCLUDED.pending_action;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.Repo, job.IssueNumber, job.Title, job.BaseBranch,
		string(job.RiskClass), string(job.Status), job.ModelProfile,
		kindsToStrings(job.RequiresApproval), textArray(job.AllowedPaths),
		textArray(job.AcceptanceCommands), textArray(job.ArtifactContract),
		job.Caps.MaxMinutes, job.Caps.MaxIterations, job.Caps.MaxUSD,
		job.CreatedBy, job.CreatedAt, job.UpdatedAt,
		string(job.CurrentStage), string(job.FailureReason), job.PRURL,
		job.CostUSD, job.Iterations, job.Attempts,
		job.NextAttemptAt, job.StartedAt, string(job.PendingAction))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			var pgErr *pgconn.PgError
			// The partial unique index on (repo, issue_number) rejects a
			// second live job for the same issue.
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.ErrDuplicateIntake
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return r.queryOne(ctx, tx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1;`, id)
}

func (r *jobRepo) FindByIDForUpdate(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	if tx == nil {
		return nil, domain.ErrInvalidArgument
	}
	return r.queryOne(ctx, tx, `SELECT `+jobColumns+` FROM jobs WHERE id=$1 FOR UPDATE;`, id)
}

func (r *jobRepo) FetchAndMarkRunning(ctx context.Context, tx repository.Tx) (*model.Job, error) {
	const q = `
UPDATE jobs SET
  status = 'running',
  attempts = attempts + 1,
  updated_at = now(),
  started_at = COALESCE(started_at, now())
WHERE id = (
  SELECT id FROM jobs
   WHERE status = 'queued' AND next_attempt_at <= now()
   ORDER BY created_at
   LIMIT 1
   FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns + `;`

	job, err := r.queryOne(ctx, tx, q)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoJobAvailable
	}
	return job, err
}

func (r *jobRepo) Touch(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE jobs SET updated_at = now() WHERE id=$1;`, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *jobRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE status=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.queryMany(ctx, tx, q, string(status), limit)
}

func (r *jobRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1;`
	return r.queryMany(ctx, tx, q, limit)
}

func (r *jobRepo) CountByStatus(ctx context.Context, tx repository.Tx, status model.JobStatus) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM jobs WHERE status=$1;`, string(status))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *jobRepo) FindActiveByRepoIssue(ctx context.Context, tx repository.Tx, repo string, issueNumber int64) (*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE repo=$1 AND issue_number=$2
   AND status IN ('queued','running','awaiting_approval')
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, repo, issueNumber)
}

func (r *jobRepo) FindRecentByRepoIssue(ctx context.Context, tx repository.Tx, repo string, issueNumber int64, since time.Time) (*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE repo=$1 AND issue_number=$2 AND created_at >= $3
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, repo, issueNumber, since)
}

func (r *jobRepo) ListRunningStartedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE status='running' AND started_at IS NOT NULL AND started_at < $1
 ORDER BY started_at ASC;`
	return r.queryMany(ctx, tx, q, cutoff)
}

func (r *jobRepo) ListStaleRunning(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE status='running' AND updated_at < $1
 ORDER BY updated_at ASC;`
	return r.queryMany(ctx, tx, q, cutoff)
}

func (r *jobRepo) ListStaleAwaitingApproval(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
  FROM jobs
 WHERE status='awaiting_approval' AND updated_at < $1
 ORDER BY updated_at ASC;`
	return r.queryMany(ctx, tx, q, cutoff)
}

func (r *jobRepo) CountFailuresSince(ctx context.Context, tx repository.Tx, reason model.FailureReason, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM jobs WHERE status='failed' AND failure_reason=$1 AND updated_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, string(reason), since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *jobRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Job, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return job, nil
}

func (r *jobRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, job)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j             model.Job
		risk          string
		status        string
		stage         string
		failureReason string
		pendingAction string
		kinds         []string
	)
	err := row.Scan(
		&j.ID, &j.Repo, &j.IssueNumber, &j.Title, &j.BaseBranch, &risk, &status, &j.ModelProfile,
		&kinds, &j.AllowedPaths, &j.AcceptanceCommands, &j.ArtifactContract,
		&j.Caps.MaxMinutes, &j.Caps.MaxIterations, &j.Caps.MaxUSD, &j.CreatedBy, &j.CreatedAt, &j.UpdatedAt,
		&stage, &failureReason, &j.PRURL, &j.CostUSD, &j.Iterations, &j.Attempts,
		&j.NextAttemptAt, &j.StartedAt, &pendingAction,
	)
	if err != nil {
		return nil, err
	}
	j.RiskClass = model.RiskClass(risk)
	j.Status = model.JobStatus(status)
	j.CurrentStage = model.Stage(stage)
	j.FailureReason = model.FailureReason(failureReason)
	j.PendingAction = model.ActionKind(pendingAction)
	j.RequiresApproval = stringsToKinds(kinds)
	return &j, nil
}

// textArray keeps nil slices out of NOT NULL text[] columns.
func textArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func kindsToStrings(kinds []model.ActionKind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}

func stringsToKinds(vals []string) []model.ActionKind {
	if len(vals) == 0 {
		return nil
	}
	out := make([]model.ActionKind, 0, len(vals))
	for _, v := range vals {
		out = append(out, model.ActionKind(v))
	}
	return out
}
