package model

import (
	"time"

	"github.com/google/uuid"
)

// Approval is one resolution record for a gated action kind. Several rows may
// exist per job; the latest row per (job, kind) is authoritative.
type Approval struct {
	ID         string
	JobID      string
	ActionKind ActionKind
	Approved   bool
	Actor      string
	Reason     string
	CreatedAt  time.Time
}

func NewApproval(jobID string, kind ActionKind, approved bool, actor, reason string) *Approval {
	return &Approval{
		ID:         uuid.NewString(),
		JobID:      jobID,
		ActionKind: kind,
		Approved:   approved,
		Actor:      actor,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
}
