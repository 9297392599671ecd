package usecase

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

// JobExecutor defines the execution operation needed by external components
// like the queue dispatcher.
type JobExecutor interface {
	// Execute runs one claimed job to a stopping point: terminal status,
	// awaiting_approval, or a requeue for retry. The returned error reports
	// infrastructure faults only; job-level failures are absorbed into the
	// job record.
	Execute(ctx context.Context, job *model.Job) error
}
