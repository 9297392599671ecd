package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/usecase"
)

const approvalCodeTimeout = "APPROVAL_TIMEOUT"

// ApprovalWorker expires jobs nobody signed off on. A job parked in
// awaiting_approval past the configured window is failed under the approval
// gate so it cannot sit holding a slot in the ledger forever. A zero or
// negative timeout disables the sweep entirely.
type ApprovalWorker struct {
	interval  time.Duration
	timeout   time.Duration
	lifecycle usecase.LifecycleUseCase
	jobs      repository.JobRepository
	log       *zerolog.Logger
}

func NewApprovalWorker(interval, timeout time.Duration, lifecycle usecase.LifecycleUseCase, jobs repository.JobRepository, logger *zerolog.Logger) *ApprovalWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "approval_worker").Logger()
	return &ApprovalWorker{
		interval:  interval,
		timeout:   timeout,
		lifecycle: lifecycle,
		jobs:      jobs,
		log:       &l,
	}
}

func (w *ApprovalWorker) Run(ctx context.Context) error {
	if w.timeout <= 0 {
		w.log.Info().Msg("approval timeout disabled, worker idle")
		<-ctx.Done()
		return ctx.Err()
	}

	w.log.Info().Dur("timeout", w.timeout).Msg("starting approval worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping approval worker")
			return ctx.Err()
		case <-ticker.C:
			w.expire(ctx)
		}
	}
}

func (w *ApprovalWorker) expire(ctx context.Context) {
	cutoff := time.Now().Add(-w.timeout)
	held, err := w.jobs.ListStaleAwaitingApproval(ctx, nil, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("approval sweep failed")
		return
	}
	for _, job := range held {
		_, err := w.lifecycle.FailAttempt(ctx, job.ID, approvalCodeTimeout,
			fmt.Sprintf("awaiting approval since %s, window %s", job.UpdatedAt.Format(time.RFC3339), w.timeout))
		if err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("could not expire held job")
			continue
		}
		metrics.IncJobReaped("approval")
		metrics.IncApproval(string(job.PendingAction), "expired")
		w.log.Warn().Str("job_id", job.ID).Str("repo", job.Repo).Str("action", string(job.PendingAction)).Msg("approval window elapsed, job failed")
	}
}
