// File: internal/usecase/incident_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
)

// IncidentUseCase raises and resolves operator-visible safety events. The
// repeated-failure rule fires once per rolling window per failure reason, not
// once per failing job.
type IncidentUseCase interface {
	// RecordJobFailure scans for repeated failures of the job's reason inside
	// the rolling window and raises at most one incident per window.
	RecordJobFailure(ctx context.Context, job *model.Job) error
	// RecordGlobalCapBreach raises a critical incident for a tripped global
	// cap, deduplicated per calendar day.
	RecordGlobalCapBreach(ctx context.Context, breach *CapBreach) error
	RaiseManual(ctx context.Context, severity model.IncidentSeverity, details string) (*model.Incident, error)
	Resolve(ctx context.Context, id string) (*model.Incident, error)
	ListOpen(ctx context.Context) ([]*model.Incident, error)
}

var _ IncidentUseCase = (*incidentUC)(nil)

type incidentUC struct {
	incidents repository.IncidentRepository
	jobs      repository.JobRepository
	notifier  adapter.OperatorNotifier
	window    time.Duration
	threshold int
	log       *zerolog.Logger
}

func NewIncidentUseCase(
	incidents repository.IncidentRepository,
	jobs repository.JobRepository,
	notifier adapter.OperatorNotifier,
	window time.Duration,
	threshold int,
	logger *zerolog.Logger,
) IncidentUseCase {
	l := logger.With().Str("component", "incident_uc").Logger()
	return &incidentUC{
		incidents: incidents,
		jobs:      jobs,
		notifier:  notifier,
		window:    window,
		threshold: threshold,
		log:       &l,
	}
}

func (u *incidentUC) RecordJobFailure(ctx context.Context, job *model.Job) error {
	if job.FailureReason == "" {
		return nil
	}
	since := time.Now().Add(-u.window)
	count, err := u.jobs.CountFailuresSince(ctx, nil, job.FailureReason, since)
	if err != nil {
		return err
	}
	if count < u.threshold {
		return nil
	}
	incidentType := model.RepeatedFailureType(job.FailureReason)
	if _, err := u.incidents.LatestByTypeSince(ctx, nil, incidentType, since); err == nil {
		// Already raised inside this window.
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	details := fmt.Sprintf("%d jobs failed with %s in the last %s (latest %s)",
		count, job.FailureReason, u.window, job.ID)
	return u.raise(ctx, model.NewIncident(incidentType, model.IncidentSeverityWarning, details))
}

func (u *incidentUC) RecordGlobalCapBreach(ctx context.Context, breach *CapBreach) error {
	if breach == nil {
		return nil
	}
	dayStart, _ := dayWindow(time.Now())
	if _, err := u.incidents.LatestByTypeSince(ctx, nil, model.IncidentTypeGlobalCap, dayStart); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return u.raise(ctx, model.NewIncident(model.IncidentTypeGlobalCap, model.IncidentSeverityCritical,
		breach.Code+": "+breach.Details))
}

func (u *incidentUC) RaiseManual(ctx context.Context, severity model.IncidentSeverity, details string) (*model.Incident, error) {
	if details == "" {
		return nil, fmt.Errorf("incident details required: %w", domain.ErrInvalidArgument)
	}
	switch severity {
	case model.IncidentSeverityInfo, model.IncidentSeverityWarning, model.IncidentSeverityCritical:
	default:
		return nil, fmt.Errorf("unknown severity %q: %w", severity, domain.ErrInvalidArgument)
	}
	inc := model.NewIncident(model.IncidentTypeManual, severity, details)
	if err := u.raise(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

func (u *incidentUC) Resolve(ctx context.Context, id string) (*model.Incident, error) {
	inc, err := u.incidents.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if inc.Status == model.IncidentStatusResolved {
		return inc, nil
	}
	inc.Resolve()
	if err := u.incidents.Save(ctx, nil, inc); err != nil {
		return nil, err
	}
	u.log.Info().Str("incident_id", id).Msg("incident resolved")
	return inc, nil
}

func (u *incidentUC) ListOpen(ctx context.Context) ([]*model.Incident, error) {
	return u.incidents.ListOpen(ctx, nil)
}

func (u *incidentUC) raise(ctx context.Context, inc *model.Incident) error {
	if err := u.incidents.Save(ctx, nil, inc); err != nil {
		return err
	}
	u.log.Error().Str("incident_id", inc.ID).Str("type", inc.Type).
		Str("severity", string(inc.Severity)).Msg(inc.Details)
	if err := u.notifier.IncidentRaised(ctx, inc); err != nil {
		u.log.Warn().Err(err).Str("incident_id", inc.ID).Msg("incident notification failed")
	}
	return nil
}
