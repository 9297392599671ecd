package repository

import (
	"context"
	"time"

	"agent-orchestrator/internal/domain/model"
)

type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// FindByIDForUpdate locks the row for the duration of the surrounding
	// transaction. Callers must pass a real tx.
	FindByIDForUpdate(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// FetchAndMarkRunning atomically claims one due queued job and marks it
	// running. Two dispatchers racing for the same job cannot both win.
	FetchAndMarkRunning(ctx context.Context, tx Tx) (*model.Job, error)
	// Touch bumps updated_at without changing anything else. Workers call it
	// while idling on the kill switch so the reaper knows the job is held.
	Touch(ctx context.Context, tx Tx, id string) error
	ListByStatus(ctx context.Context, tx Tx, status model.JobStatus, limit int) ([]*model.Job, error)
	// ListRecent returns jobs across all statuses, newest first.
	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.Job, error)
	CountByStatus(ctx context.Context, tx Tx, status model.JobStatus) (int, error)
	// FindActiveByRepoIssue returns the newest non-terminal job for the issue,
	// or ErrNotFound.
	FindActiveByRepoIssue(ctx context.Context, tx Tx, repo string, issueNumber int64) (*model.Job, error)
	// FindRecentByRepoIssue returns the newest job for the issue created at or
	// after `since`, terminal or not, or ErrNotFound.
	FindRecentByRepoIssue(ctx context.Context, tx Tx, repo string, issueNumber int64, since time.Time) (*model.Job, error)
	// ListRunningStartedBefore returns running jobs claimed before `cutoff`,
	// for the hard job timeout.
	ListRunningStartedBefore(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Job, error)
	// ListStaleRunning returns running jobs whose updated_at predates
	// `cutoff`. A live worker bumps updated_at at every iteration boundary,
	// so staleness means the worker died.
	ListStaleRunning(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Job, error)
	// ListStaleAwaitingApproval returns jobs held for sign-off since before
	// `cutoff`.
	ListStaleAwaitingApproval(ctx context.Context, tx Tx, cutoff time.Time) ([]*model.Job, error)
	// CountFailuresSince counts jobs that failed with the given reason at or
	// after `since`. Feeds the repeated-failure incident rule.
	CountFailuresSince(ctx context.Context, tx Tx, reason model.FailureReason, since time.Time) (int, error)
}
