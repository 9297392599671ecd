package repository

import (
	"context"
	"time"

	"agent-orchestrator/internal/domain/model"
)

type CostLedgerRepository interface {
	Append(ctx context.Context, tx Tx, entry *model.CostLedgerEntry) error
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.CostLedgerEntry, error)
	// SumByJob is the job's authoritative spend.
	SumByJob(ctx context.Context, tx Tx, jobID string) (float64, error)
	// SumBetween sums spend across all jobs in [from, to). Basis for the
	// daily/monthly global caps.
	SumBetween(ctx context.Context, tx Tx, from, to time.Time) (float64, error)
}
