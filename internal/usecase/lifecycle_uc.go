// File: internal/usecase/lifecycle_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
)

// LifecycleUseCase owns every job status change. A transition is one
// transaction: the row is locked, the move is validated against the
// transition table, the job is saved and exactly one timeline event is
// appended. Nothing else in the system writes job status.
type LifecycleUseCase interface {
	// Create inserts a queued job and its created event.
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	GetWithEvents(ctx context.Context, id string) (*model.Job, []*model.JobEvent, error)
	// List returns jobs filtered by status, or the most recent jobs across
	// all statuses when status is empty.
	List(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error)

	// Claim atomically hands one due queued job to the caller, consuming an
	// attempt. Returns domain.ErrNoJobAvailable when the queue is empty.
	Claim(ctx context.Context) (*model.Job, error)
	// Hold parks a running job in awaiting_approval for the given kind.
	Hold(ctx context.Context, jobID string, kind model.ActionKind, details string) (*model.Job, error)
	// Complete finishes a running job. prURL may be empty when no PR stage ran.
	Complete(ctx context.Context, jobID, prURL string) (*model.Job, error)
	// FailAttempt records a failure under its normalized code. Transient
	// reasons with retry budget left are requeued with backoff; everything
	// else goes terminal.
	FailAttempt(ctx context.Context, jobID, code, details string) (*model.Job, error)

	// UpdateStage advances the pipeline stage without changing status.
	UpdateStage(ctx context.Context, jobID string, stage model.Stage) (*model.Job, error)
	// RecordIteration bumps the billed-iteration counter and appends the
	// iteration event in one transaction.
	RecordIteration(ctx context.Context, jobID string, stage model.Stage, summary string, meta map[string]interface{}) (*model.Job, error)
	// AppendNote writes an event without touching the job row. Used for
	// paused/resumed markers and free-form notes.
	AppendNote(ctx context.Context, jobID string, stage model.Stage, typ model.JobEventType, message string) error
	// Touch bumps updated_at so the reaper can tell a held job from a dead one.
	Touch(ctx context.Context, jobID string) error
}

var _ LifecycleUseCase = (*lifecycleUC)(nil)

type lifecycleUC struct {
	jobs      repository.JobRepository
	events    repository.JobEventRepository
	tx        repository.TransactionManager
	incidents IncidentUseCase
	notifier  adapter.OperatorNotifier
	backoff   []time.Duration // normalized, len == retryMax
	retryMax  int
	log       *zerolog.Logger
}

func NewLifecycleUseCase(
	jobs repository.JobRepository,
	events repository.JobEventRepository,
	tx repository.TransactionManager,
	incidents IncidentUseCase,
	notifier adapter.OperatorNotifier,
	retryMax int,
	retryBackoff []time.Duration,
	logger *zerolog.Logger,
) LifecycleUseCase {
	l := logger.With().Str("component", "lifecycle_uc").Logger()
	return &lifecycleUC{
		jobs:      jobs,
		events:    events,
		tx:        tx,
		incidents: incidents,
		notifier:  notifier,
		backoff:   NormalizeRetryIntervals(retryMax, retryBackoff),
		retryMax:  retryMax,
		log:       &l,
	}
}

func (l *lifecycleUC) Create(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("create job: %w", domain.ErrInvalidArgument)
	}
	return l.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := l.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		ev := model.NewJobEvent(job.ID, model.StageIntake, model.JobEventCreated, "job created").WithMeta(map[string]interface{}{
			"repo":          job.Repo,
			"issue_number":  job.IssueNumber,
			"risk_class":    string(job.RiskClass),
			"model_profile": job.ModelProfile,
			"created_by":    job.CreatedBy,
		})
		return l.events.Append(ctx, tx, ev)
	})
}

func (l *lifecycleUC) Get(ctx context.Context, id string) (*model.Job, error) {
	return l.jobs.FindByID(ctx, nil, id)
}

func (l *lifecycleUC) GetWithEvents(ctx context.Context, id string) (*model.Job, []*model.JobEvent, error) {
	job, err := l.jobs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	events, err := l.events.ListByJob(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	return job, events, nil
}

func (l *lifecycleUC) List(ctx context.Context, status model.JobStatus, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if status == "" {
		return l.jobs.ListRecent(ctx, nil, limit)
	}
	return l.jobs.ListByStatus(ctx, nil, status, limit)
}

func (l *lifecycleUC) Claim(ctx context.Context) (*model.Job, error) {
	var claimed *model.Job
	err := l.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := l.jobs.FetchAndMarkRunning(ctx, tx)
		if err != nil {
			return err
		}
		ev := model.NewJobEvent(job.ID, job.CurrentStage, model.JobEventClaimed,
			fmt.Sprintf("claimed for attempt %d", job.Attempts)).WithMeta(map[string]interface{}{
			"attempt": job.Attempts,
		})
		if err := l.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("job_id", claimed.ID).Int("attempt", claimed.Attempts).Msg("job claimed")
	return claimed, nil
}

func (l *lifecycleUC) Hold(ctx context.Context, jobID string, kind model.ActionKind, details string) (*model.Job, error) {
	job, err := l.transition(ctx, jobID, model.EventHold, func(job *model.Job) {
		job.PendingAction = kind
	}, model.JobEventApprovalRequested, fmt.Sprintf("approval required for %s: %s", kind, details), map[string]interface{}{
		"action_kind": string(kind),
	})
	if err != nil {
		return nil, err
	}
	if err := l.notifier.ApprovalRequested(ctx, job, kind); err != nil {
		l.log.Warn().Err(err).Str("job_id", jobID).Msg("approval notification failed")
	}
	return job, nil
}

func (l *lifecycleUC) Complete(ctx context.Context, jobID, prURL string) (*model.Job, error) {
	job, err := l.transition(ctx, jobID, model.EventComplete, func(job *model.Job) {
		job.PRURL = prURL
		job.CurrentStage = model.StageDone
		job.FailureReason = ""
		job.PendingAction = ""
	}, model.JobEventCompleted, "job completed", map[string]interface{}{
		"pr_url": prURL,
	})
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("job_id", job.ID).Float64("cost_usd", job.CostUSD).Int("iterations", job.Iterations).Msg("job completed")
	l.notifyTerminal(ctx, job)
	return job, nil
}

func (l *lifecycleUC) FailAttempt(ctx context.Context, jobID, code, details string) (*model.Job, error) {
	norm := model.NormalizeFailure(code)
	reason := model.ClassifyFailure(norm)

	var out *model.Job
	var requeued bool
	err := l.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := l.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		now := time.Now()
		if next, ok := model.NextStatus(job.Status, model.EventRequeue); ok &&
			reason.Transient() && job.Attempts <= l.retryMax {
			delay := DelayForAttempt(job.Attempts, l.backoff)
			job.Status = next
			job.NextAttemptAt = now.Add(delay)
			job.FailureReason = ""
			job.UpdatedAt = now
			if err := l.jobs.Save(ctx, tx, job); err != nil {
				return err
			}
			ev := model.NewJobEvent(job.ID, job.CurrentStage, model.JobEventRetryScheduled,
				fmt.Sprintf("%s: retry in %s", norm, delay)).WithMeta(map[string]interface{}{
				"code":          norm,
				"reason":        string(reason),
				"attempt":       job.Attempts,
				"delay_seconds": delay.Seconds(),
				"details":       details,
			})
			if err := l.events.Append(ctx, tx, ev); err != nil {
				return err
			}
			out, requeued = job, true
			return nil
		}

		next, ok := model.NextStatus(job.Status, model.EventFail)
		if !ok {
			if job.Status.Terminal() {
				return fmt.Errorf("job %s already %s: %w", job.ID, job.Status, domain.ErrInvalidState)
			}
			return fmt.Errorf("fail from %s: %w", job.Status, domain.ErrInvalidTransition)
		}
		job.Status = next
		job.FailureReason = reason
		job.PendingAction = ""
		job.UpdatedAt = now
		if err := l.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		ev := model.NewJobEvent(job.ID, job.CurrentStage, model.JobEventFailed, details).WithMeta(map[string]interface{}{
			"code":   norm,
			"reason": string(reason),
		})
		if err := l.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if requeued {
		l.log.Warn().Str("job_id", out.ID).Str("code", norm).Int("attempt", out.Attempts).
			Time("next_attempt_at", out.NextAttemptAt).Msg("transient failure, retry scheduled")
		return out, nil
	}
	l.log.Error().Str("job_id", out.ID).Str("code", norm).Str("reason", string(reason)).Msg("job failed")
	l.notifyTerminal(ctx, out)
	if err := l.incidents.RecordJobFailure(ctx, out); err != nil {
		l.log.Warn().Err(err).Str("job_id", out.ID).Msg("repeated-failure scan failed")
	}
	return out, nil
}

func (l *lifecycleUC) UpdateStage(ctx context.Context, jobID string, stage model.Stage) (*model.Job, error) {
	var out *model.Job
	err := l.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := l.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return fmt.Errorf("job %s already %s: %w", job.ID, job.Status, domain.ErrInvalidState)
		}
		job.CurrentStage = stage
		job.UpdatedAt = time.Now()
		if err := l.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		ev := model.NewJobEvent(job.ID, stage, model.JobEventNote, "entering stage "+string(stage))
		if err := l.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = job
		return nil
	})
	return out, err
}

func (l *lifecycleUC) RecordIteration(ctx context.Context, jobID string, stage model.Stage, summary string, meta map[string]interface{}) (*model.Job, error) {
	var out *model.Job
	err := l.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := l.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		job.Iterations++
		job.CurrentStage = stage
		job.UpdatedAt = time.Now()
		if err := l.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["iteration"] = job.Iterations
		ev := model.NewJobEvent(job.ID, stage, model.JobEventIteration, summary).WithMeta(meta)
		if err := l.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = job
		return nil
	})
	return out, err
}

func (l *lifecycleUC) AppendNote(ctx context.Context, jobID string, stage model.Stage, typ model.JobEventType, message string) error {
	ev := model.NewJobEvent(jobID, stage, typ, message)
	return l.events.Append(ctx, nil, ev)
}

func (l *lifecycleUC) Touch(ctx context.Context, jobID string) error {
	return l.jobs.Touch(ctx, nil, jobID)
}

// transition is the shared primitive for single-event moves.
func (l *lifecycleUC) transition(
	ctx context.Context,
	jobID string,
	event model.TransitionEvent,
	mutate func(*model.Job),
	evType model.JobEventType,
	message string,
	meta map[string]interface{},
) (*model.Job, error) {
	var out *model.Job
	err := l.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := l.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		next, ok := model.NextStatus(job.Status, event)
		if !ok {
			if job.Status.Terminal() {
				return fmt.Errorf("job %s already %s: %w", job.ID, job.Status, domain.ErrInvalidState)
			}
			return fmt.Errorf("%s from %s: %w", event, job.Status, domain.ErrInvalidTransition)
		}
		job.Status = next
		job.UpdatedAt = time.Now()
		if mutate != nil {
			mutate(job)
		}
		if err := l.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		ev := model.NewJobEvent(job.ID, job.CurrentStage, evType, message).WithMeta(meta)
		if err := l.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = job
		return nil
	})
	return out, err
}

func (l *lifecycleUC) notifyTerminal(ctx context.Context, job *model.Job) {
	if err := l.notifier.JobTerminal(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
		l.log.Warn().Err(err).Str("job_id", job.ID).Msg("terminal notification failed")
	}
}
