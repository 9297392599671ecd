package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidState      = errors.New("operation not valid in current job state")
	ErrInvalidTransition = errors.New("illegal job status transition")
	ErrRepoDisabled      = errors.New("repository is disabled or not allowlisted")
	ErrAgentsDisabled    = errors.New("kill switch is disabled, no new work accepted")
	ErrCapExceeded       = errors.New("cap exceeded")
	ErrNoJobAvailable    = errors.New("no claimable job in queue")
	ErrDuplicateIntake   = errors.New("a job for this issue is already in progress")
	ErrRateLimited       = errors.New("intake rate limit exceeded")
	ErrLockHeld          = errors.New("lock already held")

	// Database-layer errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context passed to repository")
)
