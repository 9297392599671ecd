// File: internal/infra/worker/dispatcher.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
	ucports "agent-orchestrator/internal/domain/ports/usecase"
	"agent-orchestrator/internal/infra/metrics"
	red "agent-orchestrator/internal/infra/redis"
	"agent-orchestrator/internal/usecase"
)

const (
	pollLockKey = "dispatch:poll"
	pollLockTTL = 15 * time.Second

	runnerCodeExecutor  = "RUNTIME_EXECUTOR_ERROR"
	runnerCodeSaturated = "RUNTIME_WORKER_SATURATED"
)

// Dispatcher owns the safety gates in front of the queue: kill switch first,
// global caps second, and only then a locked claim. A replica that loses the
// poll lock simply waits for the next tick.
type Dispatcher struct {
	lifecycle usecase.LifecycleUseCase
	executor  ucports.JobExecutor
	enforcer  usecase.CapEnforcer
	incidents usecase.IncidentUseCase
	kill      usecase.KillSwitchUseCase
	jobs      repository.JobRepository
	locker    red.Locker
	cfg       config.QueueConfig
	slots     chan struct{}
	log       *zerolog.Logger
}

func NewDispatcher(
	lifecycle usecase.LifecycleUseCase,
	executor ucports.JobExecutor,
	enforcer usecase.CapEnforcer,
	incidents usecase.IncidentUseCase,
	kill usecase.KillSwitchUseCase,
	jobs repository.JobRepository,
	locker red.Locker,
	cfg config.QueueConfig,
	logger *zerolog.Logger,
) *Dispatcher {
	l := logger.With().Str("component", "dispatcher").Logger()
	slots := make(chan struct{}, cfg.MaxParallel)
	for i := 0; i < cfg.MaxParallel; i++ {
		slots <- struct{}{}
	}
	return &Dispatcher{
		lifecycle: lifecycle,
		executor:  executor,
		enforcer:  enforcer,
		incidents: incidents,
		kill:      kill,
		jobs:      jobs,
		locker:    locker,
		cfg:       cfg,
		slots:     slots,
		log:       &l,
	}
}

// Start polls the queue until ctx is cancelled. Run in a goroutine.
func (d *Dispatcher) Start(ctx context.Context, pool *Pool) {
	d.log.Info().
		Int("max_parallel", d.cfg.MaxParallel).
		Dur("poll_interval", d.cfg.PollInterval).
		Dur("job_timeout", d.cfg.JobTimeout).
		Msg("dispatcher started")

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("dispatcher stopping")
			return
		case <-ticker.C:
			d.pollOnce(ctx, pool)
		}
	}
}

func (d *Dispatcher) pollOnce(ctx context.Context, pool *Pool) {
	enabled, err := d.kill.Enabled(ctx)
	metrics.SetKillSwitch(enabled)
	if err != nil {
		d.log.Error().Err(err).Msg("kill switch read failed, holding dispatch")
		return
	}
	if !enabled {
		return
	}

	d.sampleQueueDepth(ctx)

	breach, err := d.enforcer.CheckGlobal(ctx, time.Now())
	if err != nil {
		d.log.Error().Err(err).Msg("global cap check failed, holding dispatch")
		return
	}
	if breach != nil {
		metrics.IncCapBreach(breach.Code)
		if ierr := d.incidents.RecordGlobalCapBreach(ctx, breach); ierr != nil {
			d.log.Error().Err(ierr).Str("code", breach.Code).Msg("could not record cap breach incident")
		}
		return
	}

	// Only claim when a slot is free; a claim consumes an attempt.
	select {
	case <-d.slots:
	default:
		return
	}
	job, ok := d.claimLocked(ctx)
	if !ok {
		d.slots <- struct{}{}
		return
	}

	if err := pool.Submit(func(taskCtx context.Context) error {
		defer func() { d.slots <- struct{}{} }()
		d.runJob(taskCtx, job)
		return nil
	}); err != nil {
		d.slots <- struct{}{}
		d.log.Warn().Err(err).Str("job_id", job.ID).Msg("pool refused task, requeueing")
		if _, ferr := d.lifecycle.FailAttempt(ctx, job.ID, runnerCodeSaturated, "worker pool saturated"); ferr != nil {
			d.log.Error().Err(ferr).Str("job_id", job.ID).Msg("could not requeue after pool refusal")
		}
	}
}

// claimLocked serializes the claim across replicas. The lock covers only the
// FetchAndMarkRunning race window, not job execution.
func (d *Dispatcher) claimLocked(ctx context.Context) (*model.Job, bool) {
	token, err := d.locker.TryLock(ctx, pollLockKey, pollLockTTL)
	if err != nil {
		if !errors.Is(err, domain.ErrLockHeld) {
			d.log.Error().Err(err).Msg("poll lock failed")
		}
		return nil, false
	}
	defer func() {
		if uerr := d.locker.Unlock(ctx, pollLockKey, token); uerr != nil {
			d.log.Warn().Err(uerr).Msg("poll unlock failed")
		}
	}()

	job, err := d.lifecycle.Claim(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoJobAvailable) {
			metrics.IncQueueClaim("empty")
		} else {
			metrics.IncQueueClaim("error")
			d.log.Error().Err(err).Msg("claim failed")
		}
		return nil, false
	}
	metrics.IncQueueClaim("claimed")
	return job, true
}

func (d *Dispatcher) runJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	metrics.WorkerStarted()
	defer func() {
		metrics.WorkerFinished()
		metrics.ObserveJobAttempt(time.Since(start).Seconds())
	}()

	log := d.log.With().Str("job_id", job.ID).Str("repo", job.Repo).Int("attempt", job.Attempts).Logger()
	log.Info().Msg("executing job")

	execCtx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
	defer cancel()

	err := d.executor.Execute(execCtx, job)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Shutdown. Leave the row running; the stale reaper requeues it.
		log.Info().Msg("execution interrupted by shutdown")
		return
	case errors.Is(err, context.DeadlineExceeded):
		d.failTimedOut(job, log)
	default:
		log.Error().Err(err).Msg("executor infrastructure fault")
		if _, ferr := d.lifecycle.FailAttempt(context.Background(), job.ID, runnerCodeExecutor, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("could not record executor fault, leaving job to the reaper")
		}
	}

	d.observeOutcome(job.ID, log)
}

// failTimedOut turns a wall-clock overrun into a terminal cap failure. A job
// that ran out of attempt time while parked for approval is left alone; the
// approval timer owns that case.
func (d *Dispatcher) failTimedOut(job *model.Job, log zerolog.Logger) {
	ctx := context.Background()
	fresh, err := d.lifecycle.Get(ctx, job.ID)
	if err == nil && fresh.Status == model.JobStatusAwaitingApproval {
		log.Info().Msg("attempt window closed while awaiting approval")
		return
	}
	metrics.IncCapBreach(usecase.CapCodeJobTimeout)
	if _, ferr := d.lifecycle.FailAttempt(ctx, job.ID, usecase.CapCodeJobTimeout,
		fmt.Sprintf("attempt exceeded %s", d.cfg.JobTimeout)); ferr != nil {
		log.Error().Err(ferr).Msg("could not fail timed-out job")
	}
}

// observeOutcome records where the attempt left the job.
func (d *Dispatcher) observeOutcome(jobID string, log zerolog.Logger) {
	ctx := context.Background()
	fresh, events, err := d.lifecycle.GetWithEvents(ctx, jobID)
	if err != nil {
		return
	}
	switch fresh.Status {
	case model.JobStatusCompleted, model.JobStatusRejected:
		metrics.IncJobProcessed(string(fresh.Status), "")
	case model.JobStatusFailed:
		metrics.IncJobProcessed(string(fresh.Status), string(fresh.FailureReason))
	case model.JobStatusQueued:
		metrics.IncJobRetry(lastRetryCode(events))
	}
	log.Info().Str("status", string(fresh.Status)).Msg("attempt finished")
}

func lastRetryCode(events []*model.JobEvent) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != model.JobEventRetryScheduled {
			continue
		}
		if code, ok := events[i].Meta["code"].(string); ok {
			return code
		}
		return "unknown"
	}
	return "unknown"
}

func (d *Dispatcher) sampleQueueDepth(ctx context.Context) {
	for _, status := range []model.JobStatus{
		model.JobStatusQueued, model.JobStatusRunning, model.JobStatusAwaitingApproval,
	} {
		n, err := d.jobs.CountByStatus(ctx, nil, status)
		if err != nil {
			continue
		}
		metrics.SetQueueDepth(string(status), n)
	}
}
