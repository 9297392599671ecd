package adapter

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

// OperatorNotifier pushes safety-relevant moments to a human channel.
type OperatorNotifier interface {
	ApprovalRequested(ctx context.Context, job *model.Job, kind model.ActionKind) error
	JobTerminal(ctx context.Context, job *model.Job) error
	IncidentRaised(ctx context.Context, incident *model.Incident) error
}
