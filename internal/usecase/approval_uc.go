// File: internal/usecase/approval_uc.go
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

// ApprovalUseCase resolves gated action kinds. Approvals are idempotent and
// may arrive before the job ever pauses; a reject is terminal from any live
// status, so in an approve/reject race the reject wins.
type ApprovalUseCase interface {
	// Approve records sign-off for kind. If the job is currently paused on
	// that kind it resumes in the same transaction. Approving an already
	// approved kind is a no-op success; approving a terminal job is
	// ErrInvalidState.
	Approve(ctx context.Context, jobID string, kind model.ActionKind, actor, reason string) (*model.Job, error)
	// Reject terminates the job from any non-terminal status.
	Reject(ctx context.Context, jobID, actor, reason string) (*model.Job, error)
	// IsApproved reports whether the latest resolution for (job, kind) is an
	// approval.
	IsApproved(ctx context.Context, jobID string, kind model.ActionKind) (bool, error)
	ListByJob(ctx context.Context, jobID string) ([]*model.Approval, error)
}

var _ ApprovalUseCase = (*approvalUC)(nil)

type approvalUC struct {
	approvals repository.ApprovalRepository
	jobs      repository.JobRepository
	events    repository.JobEventRepository
	tx        repository.TransactionManager
	notifier  adapter.OperatorNotifier
	log       *zerolog.Logger
}

func NewApprovalUseCase(
	approvals repository.ApprovalRepository,
	jobs repository.JobRepository,
	events repository.JobEventRepository,
	tx repository.TransactionManager,
	notifier adapter.OperatorNotifier,
	logger *zerolog.Logger,
) ApprovalUseCase {
	l := logger.With().Str("component", "approval_uc").Logger()
	return &approvalUC{
		approvals: approvals,
		jobs:      jobs,
		events:    events,
		tx:        tx,
		notifier:  notifier,
		log:       &l,
	}
}

func (u *approvalUC) Approve(ctx context.Context, jobID string, kind model.ActionKind, actor, reason string) (*model.Job, error) {
	if !model.ValidActionKind(kind) {
		return nil, fmt.Errorf("approve: unknown action kind %q: %w", kind, domain.ErrInvalidArgument)
	}
	var out *model.Job
	var resumed bool
	err := u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return fmt.Errorf("job %s already %s: %w", job.ID, job.Status, domain.ErrInvalidState)
		}
		latest, err := u.approvals.LatestByJobAndKind(ctx, tx, jobID, kind)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if latest != nil && latest.Approved {
			out = job
			return nil
		}
		if err := u.approvals.Save(ctx, tx, model.NewApproval(jobID, kind, true, actor, reason)); err != nil {
			return err
		}
		meta := map[string]interface{}{"action_kind": string(kind), "actor": actor}
		if job.Status == model.JobStatusAwaitingApproval && job.PendingAction == kind {
			next, ok := model.NextStatus(job.Status, model.EventApprove)
			if !ok {
				return fmt.Errorf("approve from %s: %w", job.Status, domain.ErrInvalidTransition)
			}
			job.Status = next
			job.PendingAction = ""
			job.UpdatedAt = time.Now()
			if err := u.jobs.Save(ctx, tx, job); err != nil {
				return err
			}
			resumed = true
		}
		ev := model.NewJobEvent(job.ID, job.CurrentStage, model.JobEventApproved,
			fmt.Sprintf("%s approved by %s", kind, actor)).WithMeta(meta)
		if err := u.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", jobID).Str("action_kind", string(kind)).Str("actor", actor).
		Bool("resumed", resumed).Msg("action kind approved")
	return out, nil
}

func (u *approvalUC) Reject(ctx context.Context, jobID, actor, reason string) (*model.Job, error) {
	var out *model.Job
	err := u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByIDForUpdate(ctx, tx, jobID)
		if err != nil {
			return err
		}
		next, ok := model.NextStatus(job.Status, model.EventReject)
		if !ok {
			return fmt.Errorf("job %s already %s: %w", job.ID, job.Status, domain.ErrInvalidState)
		}
		// The rejection is recorded against the pending kind when there is
		// one, so the audit trail shows what was refused.
		if job.PendingAction != "" {
			if err := u.approvals.Save(ctx, tx, model.NewApproval(jobID, job.PendingAction, false, actor, reason)); err != nil {
				return err
			}
		}
		job.Status = next
		job.PendingAction = ""
		job.UpdatedAt = time.Now()
		if err := u.jobs.Save(ctx, tx, job); err != nil {
			return err
		}
		ev := model.NewJobEvent(job.ID, job.CurrentStage, model.JobEventRejected,
			fmt.Sprintf("rejected by %s: %s", actor, reason)).WithMeta(map[string]interface{}{
			"actor":  actor,
			"reason": reason,
		})
		if err := u.events.Append(ctx, tx, ev); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Warn().Str("job_id", jobID).Str("actor", actor).Msg("job rejected")
	if err := u.notifier.JobTerminal(ctx, out); err != nil {
		u.log.Warn().Err(err).Str("job_id", jobID).Msg("terminal notification failed")
	}
	return out, nil
}

func (u *approvalUC) IsApproved(ctx context.Context, jobID string, kind model.ActionKind) (bool, error) {
	latest, err := u.approvals.LatestByJobAndKind(ctx, nil, jobID, kind)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.Approved, nil
}

func (u *approvalUC) ListByJob(ctx context.Context, jobID string) ([]*model.Approval, error) {
	return u.approvals.ListByJob(ctx, nil, jobID)
}
