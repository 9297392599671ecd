package model

import (
	"time"

	"github.com/google/uuid"
)

// CostLedgerEntry is one row per billed model call. The sum over a job's rows
// is that job's authoritative spend; day/month sums across jobs back the
// global caps.
type CostLedgerEntry struct {
	ID               string
	JobID            string
	Model            string
	PromptTokens     int
	CompletionTokens int
	USD              float64
	CreatedAt        time.Time
}

func NewCostLedgerEntry(jobID, modelName string, promptTokens, completionTokens int, usd float64) *CostLedgerEntry {
	return &CostLedgerEntry{
		ID:               uuid.NewString(),
		JobID:            jobID,
		Model:            modelName,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		USD:              usd,
		CreatedAt:        time.Now(),
	}
}
