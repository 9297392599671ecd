package repository

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

type ModelProfileRepository interface {
	// GetByProfile returns the active binding for a profile name.
	GetByProfile(ctx context.Context, tx Tx, profile string) (*model.ModelProfile, error)
	// Save upserts operator changes.
	Save(ctx context.Context, tx Tx, p *model.ModelProfile) error
	// ListActive (for the operator API).
	ListActive(ctx context.Context, tx Tx) ([]*model.ModelProfile, error)
}
