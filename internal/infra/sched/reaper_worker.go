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

const reaperCodeWorkerLost = "RUNTIME_WORKER_LOST"

// ReaperWorker closes out jobs whose worker stopped reporting. Two sweeps:
// running jobs past the hard wall clock are failed under the timeout cap,
// and running jobs without a recent heartbeat are requeued on the assumption
// their worker died. A worker idling on the kill switch touches its job every
// tick, so pausing never looks like death.
type ReaperWorker struct {
	interval   time.Duration
	jobTimeout time.Duration
	staleAfter time.Duration
	lifecycle  usecase.LifecycleUseCase
	jobs       repository.JobRepository
	log        *zerolog.Logger
}

func NewReaperWorker(interval, jobTimeout, staleAfter time.Duration, lifecycle usecase.LifecycleUseCase, jobs repository.JobRepository, logger *zerolog.Logger) *ReaperWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "reaper_worker").Logger()
	return &ReaperWorker{
		interval:   interval,
		jobTimeout: jobTimeout,
		staleAfter: staleAfter,
		lifecycle:  lifecycle,
		jobs:       jobs,
		log:        &l,
	}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	w.log.Info().
		Dur("job_timeout", w.jobTimeout).
		Dur("stale_after", w.staleAfter).
		Msg("starting reaper worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping reaper worker")
			return ctx.Err()
		case <-ticker.C:
			w.reapTimedOut(ctx)
			w.reapStale(ctx)
		}
	}
}

func (w *ReaperWorker) reapTimedOut(ctx context.Context) {
	cutoff := time.Now().Add(-w.jobTimeout)
	timedOut, err := w.jobs.ListRunningStartedBefore(ctx, nil, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("timeout sweep failed")
		return
	}
	for _, job := range timedOut {
		_, err := w.lifecycle.FailAttempt(ctx, job.ID, usecase.CapCodeJobTimeout,
			fmt.Sprintf("running since %s, wall clock limit %s", job.StartedAt.Format(time.RFC3339), w.jobTimeout))
		if err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("could not fail timed-out job")
			continue
		}
		metrics.IncJobReaped("timeout")
		metrics.IncCapBreach(usecase.CapCodeJobTimeout)
		w.log.Warn().Str("job_id", job.ID).Str("repo", job.Repo).Msg("job exceeded wall clock, failed")
	}
}

func (w *ReaperWorker) reapStale(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.jobs.ListStaleRunning(ctx, nil, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("stale sweep failed")
		return
	}
	for _, job := range stale {
		updated, err := w.lifecycle.FailAttempt(ctx, job.ID, reaperCodeWorkerLost,
			fmt.Sprintf("no heartbeat since %s", job.UpdatedAt.Format(time.RFC3339)))
		if err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("could not requeue stale job")
			continue
		}
		metrics.IncJobReaped("stale")
		w.log.Warn().
			Str("job_id", job.ID).
			Str("repo", job.Repo).
			Str("status", string(updated.Status)).
			Msg("job heartbeat lost")
	}
}
