package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.RepoProfileRepository = (*repoProfileRepo)(nil)

type repoProfileRepo struct {
	pool *pgxpool.Pool
}

func NewRepoProfileRepo(pool *pgxpool.Pool) *repoProfileRepo {
	return &repoProfileRepo{pool: pool}
}

func (r *repoProfileRepo) Get(ctx context.Context, tx repository.Tx, repo string) (*model.RepoProfile, error) {
	const q = `
SELECT repo, enabled, default_branch, allowed_paths, acceptance_commands, updated_at
  FROM repo_profiles
 WHERE repo=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, repo)
	if err != nil {
		return nil, err
	}
	var p model.RepoProfile
	if err := row.Scan(&p.Repo, &p.Enabled, &p.DefaultBranch, &p.AllowedPaths, &p.AcceptanceCommands, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &p, nil
}

func (r *repoProfileRepo) Save(ctx context.Context, tx repository.Tx, profile *model.RepoProfile) error {
	profile.UpdatedAt = time.Now()
	const q = `
INSERT INTO repo_profiles (repo, enabled, default_branch, allowed_paths, acceptance_commands, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (repo) DO UPDATE SET
  enabled = EXCLUDED.enabled,
  default_branch = EXCLUDED.default_branch,
  allowed_paths = EXCLUDED.allowed_paths,
  acceptance_commands = EXCLUDED.acceptance_commands,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		profile.Repo, profile.Enabled, profile.DefaultBranch,
		textArray(profile.AllowedPaths), textArray(profile.AcceptanceCommands), profile.UpdatedAt)
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

func (r *repoProfileRepo) List(ctx context.Context, tx repository.Tx) ([]*model.RepoProfile, error) {
	const q = `
SELECT repo, enabled, default_branch, allowed_paths, acceptance_commands, updated_at
  FROM repo_profiles
 ORDER BY repo ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.RepoProfile
	for rows.Next() {
		var p model.RepoProfile
		if err := rows.Scan(&p.Repo, &p.Enabled, &p.DefaultBranch, &p.AllowedPaths, &p.AcceptanceCommands, &p.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
