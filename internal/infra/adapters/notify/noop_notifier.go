package notify

import (
	"context"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.OperatorNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs instead of sending. Fast mode and setups without a
// Telegram operator channel use it.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	l := logger.With().Str("component", "noop_notifier").Logger()
	return &NoopNotifier{log: &l}
}

func (n *NoopNotifier) ApprovalRequested(ctx context.Context, job *model.Job, kind model.ActionKind) error {
	n.log.Info().Str("job_id", job.ID).Str("action_kind", string(kind)).Msg("approval requested")
	return nil
}

func (n *NoopNotifier) JobTerminal(ctx context.Context, job *model.Job) error {
	n.log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Str("pr_url", job.PRURL).Msg("job reached terminal state")
	return nil
}

func (n *NoopNotifier) IncidentRaised(ctx context.Context, incident *model.Incident) error {
	n.log.Warn().Str("incident_id", incident.ID).Str("type", incident.Type).Str("severity", string(incident.Severity)).Msg("incident raised")
	return nil
}
