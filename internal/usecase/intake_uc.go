// File: internal/usecase/intake_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
)

// Two jobs for the same issue inside this window are treated as duplicate
// deliveries, terminal or not.
const intakeDupWindow = 2 * time.Minute

const riskLabelPrefix = "risk:"

// IntakeRateLimiter throttles webhook-driven job creation per repo.
type IntakeRateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type CreateJobParams struct {
	Repo               string
	IssueNumber        int64
	Title              string
	RiskClass          model.RiskClass
	ModelProfile       string
	CreatedBy          string
	BaseBranch         string   // defaults to the repo profile's branch
	AllowedPaths       []string // defaults to the repo profile's allowlist
	AcceptanceCommands []string // defaults to the repo profile's commands
	Caps               *model.Caps
}

type TextIntakeParams struct {
	Repo         string
	Title        string
	Body         string
	RiskClass    model.RiskClass
	ModelProfile string
	CreatedBy    string
}

// WebhookIssueEvent is the already-verified payload of an issues webhook.
type WebhookIssueEvent struct {
	Action      string
	Repo        string
	IssueNumber int64
	Title       string
	Labels      []string
	Sender      string
}

// IntakeUseCase turns work requests (operator calls, issue text, webhooks)
// into queued jobs. All three paths funnel through CreateJob so repo
// standing, duplicate suppression and the static contract check apply
// uniformly.
type IntakeUseCase interface {
	CreateJob(ctx context.Context, p CreateJobParams) (*model.Job, error)
	// IntakeFromText files an issue for the task first (a real one in release
	// mode, a synthetic number in fast mode), then creates the job.
	IntakeFromText(ctx context.Context, p TextIntakeParams) (*model.Job, error)
	// IntakeFromWebhook handles an issues event. Events without the intake
	// label or with an unhandled action are acknowledged and discarded,
	// returning (nil, nil).
	IntakeFromWebhook(ctx context.Context, ev WebhookIssueEvent) (*model.Job, error)
}

var _ IntakeUseCase = (*intakeUC)(nil)

type intakeUC struct {
	profiles    repository.RepoProfileRepository
	jobs        repository.JobRepository
	lifecycle   LifecycleUseCase
	policy      PolicyUseCase
	github      adapter.GitHubClient
	limiter     IntakeRateLimiter
	defaultCaps config.JobCapsConfig
	intake      config.IntakeConfig
	intakeLabel string
	log         *zerolog.Logger
}

func NewIntakeUseCase(
	profiles repository.RepoProfileRepository,
	jobs repository.JobRepository,
	lifecycle LifecycleUseCase,
	policy PolicyUseCase,
	github adapter.GitHubClient,
	limiter IntakeRateLimiter,
	defaultCaps config.JobCapsConfig,
	intake config.IntakeConfig,
	intakeLabel string,
	logger *zerolog.Logger,
) IntakeUseCase {
	l := logger.With().Str("component", "intake_uc").Logger()
	return &intakeUC{
		profiles:    profiles,
		jobs:        jobs,
		lifecycle:   lifecycle,
		policy:      policy,
		github:      github,
		limiter:     limiter,
		defaultCaps: defaultCaps,
		intake:      intake,
		intakeLabel: intakeLabel,
		log:         &l,
	}
}

func (u *intakeUC) CreateJob(ctx context.Context, p CreateJobParams) (*model.Job, error) {
	if p.Repo == "" || p.IssueNumber <= 0 {
		return nil, fmt.Errorf("repo and issue number required: %w", domain.ErrInvalidArgument)
	}
	if !model.ValidRiskClass(p.RiskClass) {
		return nil, fmt.Errorf("unknown risk class %q: %w", p.RiskClass, domain.ErrInvalidArgument)
	}
	switch p.ModelProfile {
	case "":
		p.ModelProfile = model.ProfileBuild
	case model.ProfileTriage, model.ProfileBuild, model.ProfileReview:
	default:
		return nil, fmt.Errorf("unknown model profile %q: %w", p.ModelProfile, domain.ErrInvalidArgument)
	}

	profile, err := u.profiles.Get(ctx, nil, p.Repo)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("repo %q is not onboarded: %w", p.Repo, domain.ErrRepoDisabled)
	}
	if err != nil {
		return nil, err
	}
	if !profile.Enabled {
		return nil, fmt.Errorf("repo %q: %w", p.Repo, domain.ErrRepoDisabled)
	}

	if err := u.checkDuplicate(ctx, p.Repo, p.IssueNumber); err != nil {
		return nil, err
	}

	caps := model.Caps{
		MaxUSD:        u.defaultCaps.MaxUSD,
		MaxMinutes:    u.defaultCaps.MaxMinutes,
		MaxIterations: u.defaultCaps.MaxIterations,
	}
	if p.Caps != nil {
		caps = *p.Caps
	}
	base := p.BaseBranch
	if base == "" {
		base = profile.DefaultBranch
	}
	job := model.NewJob(p.Repo, p.IssueNumber, p.Title, base, p.RiskClass, p.ModelProfile, p.CreatedBy, caps)
	job.AllowedPaths = firstNonEmpty(p.AllowedPaths, profile.AllowedPaths)
	job.AcceptanceCommands = firstNonEmpty(p.AcceptanceCommands, profile.AcceptanceCommands)
	job.RequiresApproval = u.policy.RequiredApprovals(p.RiskClass)

	if err := u.lifecycle.Create(ctx, job); err != nil {
		return nil, err
	}
	u.log.Info().Str("job_id", job.ID).Str("repo", job.Repo).Int64("issue", job.IssueNumber).
		Str("risk_class", string(job.RiskClass)).Msg("job created")

	// Static contract check runs after the row exists so the decision lands
	// in the audit trail. A deny fails the job instead of hiding it.
	verdict, err := u.policy.ValidateContract(ctx, job)
	if err != nil {
		return nil, err
	}
	if verdict.Decision == model.PolicyDeny {
		return u.lifecycle.FailAttempt(ctx, job.ID, verdict.Code, verdict.Details)
	}
	return job, nil
}

func (u *intakeUC) IntakeFromText(ctx context.Context, p TextIntakeParams) (*model.Job, error) {
	if p.Title == "" {
		return nil, fmt.Errorf("title required: %w", domain.ErrInvalidArgument)
	}
	ref, err := u.github.CreateIssue(ctx, p.Repo, p.Title, p.Body, []string{u.intakeLabel})
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return u.CreateJob(ctx, CreateJobParams{
		Repo:         p.Repo,
		IssueNumber:  ref.Number,
		Title:        p.Title,
		RiskClass:    p.RiskClass,
		ModelProfile: p.ModelProfile,
		CreatedBy:    p.CreatedBy,
	})
}

func (u *intakeUC) IntakeFromWebhook(ctx context.Context, ev WebhookIssueEvent) (*model.Job, error) {
	switch ev.Action {
	case "opened", "reopened", "labeled":
	default:
		return nil, nil
	}
	if !hasLabel(ev.Labels, u.intakeLabel) {
		return nil, nil
	}

	ok, err := u.limiter.Allow(ctx, "intake:"+ev.Repo, u.intake.RateLimit, u.intake.RateWindow)
	if err != nil {
		return nil, fmt.Errorf("intake rate limiter: %w", err)
	}
	if !ok {
		u.log.Warn().Str("repo", ev.Repo).Msg("webhook intake rate limited")
		return nil, fmt.Errorf("repo %s: %w", ev.Repo, domain.ErrRateLimited)
	}

	risk, err := riskFromLabels(ev.Labels)
	if err != nil {
		return nil, err
	}
	createdBy := "webhook"
	if ev.Sender != "" {
		createdBy = "webhook:" + ev.Sender
	}
	return u.CreateJob(ctx, CreateJobParams{
		Repo:        ev.Repo,
		IssueNumber: ev.IssueNumber,
		Title:       ev.Title,
		RiskClass:   risk,
		CreatedBy:   createdBy,
	})
}

func (u *intakeUC) checkDuplicate(ctx context.Context, repo string, issue int64) error {
	if active, err := u.jobs.FindActiveByRepoIssue(ctx, nil, repo, issue); err == nil {
		return fmt.Errorf("issue already has live job %s: %w", active.ID, domain.ErrDuplicateIntake)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	since := time.Now().Add(-intakeDupWindow)
	if recent, err := u.jobs.FindRecentByRepoIssue(ctx, nil, repo, issue, since); err == nil {
		return fmt.Errorf("issue had job %s within %s: %w", recent.ID, intakeDupWindow, domain.ErrDuplicateIntake)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func firstNonEmpty(override, fallback []string) []string {
	if len(override) > 0 {
		return append([]string(nil), override...)
	}
	return append([]string(nil), fallback...)
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(strings.TrimSpace(l), want) {
			return true
		}
	}
	return false
}

// riskFromLabels reads the first "risk:<class>" label. No label means code.
func riskFromLabels(labels []string) (model.RiskClass, error) {
	for _, l := range labels {
		l = strings.TrimSpace(strings.ToLower(l))
		if !strings.HasPrefix(l, riskLabelPrefix) {
			continue
		}
		risk := model.RiskClass(strings.TrimPrefix(l, riskLabelPrefix))
		if !model.ValidRiskClass(risk) {
			return "", fmt.Errorf("unknown risk label %q: %w", l, domain.ErrInvalidArgument)
		}
		return risk, nil
	}
	return model.RiskClassCode, nil
}
