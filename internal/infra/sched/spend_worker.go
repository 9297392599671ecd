package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/usecase"
)

// SpendWorker samples the cost ledger and exports the rolling UTC day and
// month totals as gauges, so dashboards track cap headroom without querying
// the database.
type SpendWorker struct {
	interval time.Duration
	ledger   usecase.CostLedgerUseCase
	log      *zerolog.Logger
}

func NewSpendWorker(interval time.Duration, ledger usecase.CostLedgerUseCase, logger *zerolog.Logger) *SpendWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := logger.With().Str("component", "spend_worker").Logger()
	return &SpendWorker{interval: interval, ledger: ledger, log: &l}
}

func (w *SpendWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("starting spend worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping spend worker")
			return ctx.Err()
		case <-ticker.C:
			w.sample(ctx)
		}
	}
}

func (w *SpendWorker) sample(ctx context.Context) {
	now := time.Now()
	day, err := w.ledger.DaySpend(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("day spend sample failed")
		return
	}
	month, err := w.ledger.MonthSpend(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("month spend sample failed")
		return
	}
	metrics.SetSpendWindow("daily", day)
	metrics.SetSpendWindow("monthly", month)
}
