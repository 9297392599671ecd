package repository

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

type ApprovalRepository interface {
	Save(ctx context.Context, tx Tx, approval *model.Approval) error
	// LatestByJobAndKind returns the newest resolution for (job, kind), or
	// ErrNotFound when the kind was never resolved.
	LatestByJobAndKind(ctx context.Context, tx Tx, jobID string, kind model.ActionKind) (*model.Approval, error)
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.Approval, error)
}
