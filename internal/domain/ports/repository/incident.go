package repository

import (
	"context"
	"time"

	"agent-orchestrator/internal/domain/model"
)

type IncidentRepository interface {
	Save(ctx context.Context, tx Tx, incident *model.Incident) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Incident, error)
	ListOpen(ctx context.Context, tx Tx) ([]*model.Incident, error)
	// LatestByTypeSince returns the newest incident of `incidentType` created
	// at or after `since`, or ErrNotFound. Used to raise at most one incident
	// per rolling window.
	LatestByTypeSince(ctx context.Context, tx Tx, incidentType string, since time.Time) (*model.Incident, error)
}
