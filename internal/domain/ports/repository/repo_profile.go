package repository

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

type RepoProfileRepository interface {
	// Get returns the profile, or ErrNotFound for repos outside the allowlist.
	Get(ctx context.Context, tx Tx, repo string) (*model.RepoProfile, error)
	Save(ctx context.Context, tx Tx, profile *model.RepoProfile) error
	List(ctx context.Context, tx Tx) ([]*model.RepoProfile, error)
}
