package repository

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

type JobEventRepository interface {
	Append(ctx context.Context, tx Tx, event *model.JobEvent) error
	// ListByJob returns the job's events in creation order.
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.JobEvent, error)
}
