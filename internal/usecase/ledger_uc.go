// File: internal/usecase/ledger_uc.go
package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

// CostLedgerUseCase owns all spend accounting. Every billed model call lands
// here exactly once; job.CostUSD is updated in the same transaction as the
// ledger row so the two can never drift apart.
type CostLedgerUseCase interface {
	Record(ctx context.Context, jobID, modelName string, promptTokens, completionTokens int, usd float64) (*model.CostLedgerEntry, error)
	JobSpend(ctx context.Context, jobID string) (float64, error)
	// DaySpend sums all entries for the UTC calendar day containing `at`.
	DaySpend(ctx context.Context, at time.Time) (float64, error)
	// MonthSpend sums all entries for the UTC calendar month containing `at`.
	MonthSpend(ctx context.Context, at time.Time) (float64, error)
	ListByJob(ctx context.Context, jobID string) ([]*model.CostLedgerEntry, error)
}

var _ CostLedgerUseCase = (*costLedgerUC)(nil)

type costLedgerUC struct {
	jobs    repository.JobRepository
	entries repository.CostLedgerRepository
	tx      repository.TransactionManager
	log     *zerolog.Logger
}

func NewCostLedgerUseCase(
	jobs repository.JobRepository,
	entries repository.CostLedgerRepository,
	tx repository.TransactionManager,
	logger *zerolog.Logger,
) CostLedgerUseCase {
	l := logger.With().Str("component", "ledger_uc").Logger()
	return &costLedgerUC{jobs: jobs, entries: entries, tx: tx, log: &l}
}

// roundUSD keeps stored dollar amounts at 6 decimal places, the resolution of
// one micro-dollar.
func roundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func (u *costLedgerUC) Record(ctx context.Context, jobID, modelName string, promptTokens, completionTokens int, usd float64) (*model.CostLedgerEntry, error) {
	if jobID == "" || modelName == "" {
		return nil, fmt.Errorf("record cost: %w", domain.ErrInvalidArgument)
	}
	if usd < 0 || promptTokens < 0 || completionTokens < 0 {
		return nil, fmt.Errorf("record cost: negative amount: %w", domain.ErrInvalidArgument)
	}
	entry := model.NewCostLedgerEntry(jobID, modelName, promptTokens, completionTokens, roundUSD(usd))
	err := u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := u.entries.Append(ctx, tx, entry); err != nil {
			return err
		}
		job.CostUSD = roundUSD(job.CostUSD + entry.USD)
		job.UpdatedAt = time.Now()
		return u.jobs.Save(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	u.log.Debug().Str("job_id", jobID).Str("model", modelName).Float64("usd", entry.USD).Msg("cost recorded")
	return entry, nil
}

func (u *costLedgerUC) JobSpend(ctx context.Context, jobID string) (float64, error) {
	return u.entries.SumByJob(ctx, nil, jobID)
}

func (u *costLedgerUC) DaySpend(ctx context.Context, at time.Time) (float64, error) {
	from, to := dayWindow(at)
	return u.entries.SumBetween(ctx, nil, from, to)
}

func (u *costLedgerUC) MonthSpend(ctx context.Context, at time.Time) (float64, error) {
	from, to := monthWindow(at)
	return u.entries.SumBetween(ctx, nil, from, to)
}

func (u *costLedgerUC) ListByJob(ctx context.Context, jobID string) ([]*model.CostLedgerEntry, error) {
	return u.entries.ListByJob(ctx, nil, jobID)
}

func dayWindow(at time.Time) (time.Time, time.Time) {
	t := at.UTC()
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

func monthWindow(at time.Time) (time.Time, time.Time) {
	t := at.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
