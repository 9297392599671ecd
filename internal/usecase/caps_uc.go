// File: internal/usecase/caps_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain/model"
)

// Machine failure codes emitted by cap checks. ClassifyFailure maps the CAP_
// prefix to the budget_cap reason; none of these are retryable.
const (
	CapCodeCost       = "CAP_COST_EXCEEDED"
	CapCodeTime       = "CAP_TIME_EXCEEDED"
	CapCodeIterations = "CAP_ITERATIONS_EXCEEDED"
	CapCodeDaily      = "CAP_DAILY_EXCEEDED"
	CapCodeMonthly    = "CAP_MONTHLY_EXCEEDED"
	CapCodeJobTimeout = "JOB_TIMEOUT"
)

// CapBreach describes one exceeded limit.
type CapBreach struct {
	Code    string
	Details string
}

// CapEnforcer checks hard spend/time/iteration limits. Per-job caps come from
// the job's own immutable contract; the global day/month caps come from
// deployment config.
type CapEnforcer interface {
	// CheckJob reports the first breached per-job cap, or nil. nextIteration
	// is the iteration about to run (1-based).
	CheckJob(job *model.Job, nextIteration int, now time.Time) *CapBreach
	// CheckGlobal reports the first breached global cap, or nil. A breach
	// halts new dispatch; in-flight jobs run to their next boundary.
	CheckGlobal(ctx context.Context, now time.Time) (*CapBreach, error)
}

var _ CapEnforcer = (*capEnforcer)(nil)

type capEnforcer struct {
	ledger CostLedgerUseCase
	caps   config.CapsConfig
	log    *zerolog.Logger
}

func NewCapEnforcer(ledger CostLedgerUseCase, caps config.CapsConfig, logger *zerolog.Logger) CapEnforcer {
	l := logger.With().Str("component", "caps_uc").Logger()
	return &capEnforcer{ledger: ledger, caps: caps, log: &l}
}

func (c *capEnforcer) CheckJob(job *model.Job, nextIteration int, now time.Time) *CapBreach {
	if job.Caps.MaxUSD > 0 && job.CostUSD >= job.Caps.MaxUSD {
		return &CapBreach{
			Code:    CapCodeCost,
			Details: fmt.Sprintf("job spend $%.6f reached cap $%.2f", job.CostUSD, job.Caps.MaxUSD),
		}
	}
	if job.Caps.MaxIterations > 0 && nextIteration > job.Caps.MaxIterations {
		return &CapBreach{
			Code:    CapCodeIterations,
			Details: fmt.Sprintf("iteration %d exceeds cap %d", nextIteration, job.Caps.MaxIterations),
		}
	}
	if job.Caps.MaxMinutes > 0 && job.StartedAt != nil {
		elapsed := now.Sub(*job.StartedAt)
		if elapsed >= time.Duration(job.Caps.MaxMinutes)*time.Minute {
			return &CapBreach{
				Code:    CapCodeTime,
				Details: fmt.Sprintf("wall clock %s reached cap %dm", elapsed.Truncate(time.Second), job.Caps.MaxMinutes),
			}
		}
	}
	return nil
}

func (c *capEnforcer) CheckGlobal(ctx context.Context, now time.Time) (*CapBreach, error) {
	day, err := c.ledger.DaySpend(ctx, now)
	if err != nil {
		return nil, err
	}
	if c.caps.DailyUSD > 0 && day >= c.caps.DailyUSD {
		return &CapBreach{
			Code:    CapCodeDaily,
			Details: fmt.Sprintf("daily spend $%.2f reached cap $%.2f", day, c.caps.DailyUSD),
		}, nil
	}
	month, err := c.ledger.MonthSpend(ctx, now)
	if err != nil {
		return nil, err
	}
	if c.caps.MonthlyUSD > 0 && month >= c.caps.MonthlyUSD {
		return &CapBreach{
			Code:    CapCodeMonthly,
			Details: fmt.Sprintf("monthly spend $%.2f reached cap $%.2f", month, c.caps.MonthlyUSD),
		}, nil
	}
	return nil, nil
}
