package repository

import (
	"context"

	"agent-orchestrator/internal/domain/model"
)

type PolicyAuditRepository interface {
	Append(ctx context.Context, tx Tx, entry *model.PolicyAuditEntry) error
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.PolicyAuditEntry, error)
}
