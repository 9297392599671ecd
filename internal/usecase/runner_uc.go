// File: internal/usecase/runner_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	ucports "agent-orchestrator/internal/domain/ports/usecase"
)

// Machine failure codes raised by the runner itself.
const (
	runnerCodeModelCall   = "RUNTIME_MODEL_CALL_FAILED"
	runnerCodeProfile     = "RUNTIME_MODEL_PROFILE_MISSING"
	runnerCodeArtifact    = "RUNTIME_ARTIFACT_WRITE_FAILED"
	runnerCodeContract    = "RUNTIME_ARTIFACT_CONTRACT_VIOLATION"
	runnerCodeGitHubPR    = "GITHUB_PR_CREATE_FAILED"
	runnerCodeApprovalNil = "APPROVAL_REJECTED"
)

// jobRunner walks a claimed job through the stage pipeline. Every stage
// boundary re-checks the kill switch, re-reads persisted status and runs a
// policy evaluation before doing anything with side effects, so a cancel or
// deny lands within one iteration.
//
// The returned error from Execute reports infrastructure faults only;
// job-level outcomes (failed, held, requeued, rejected) are absorbed into
// the job record.
type jobRunner struct {
	lifecycle    LifecycleUseCase
	approvals    ApprovalUseCase
	policy       PolicyUseCase
	kill         KillSwitchUseCase
	agent        adapter.CodingAgent
	github       adapter.GitHubClient
	artifacts    adapter.ArtifactStore
	ledger       CostLedgerUseCase
	profiles     repository.ModelProfileRepository
	pollInterval time.Duration
	log          *zerolog.Logger
}

var _ ucports.JobExecutor = (*jobRunner)(nil)

func NewJobRunner(
	lifecycle LifecycleUseCase,
	approvals ApprovalUseCase,
	policy PolicyUseCase,
	kill KillSwitchUseCase,
	agent adapter.CodingAgent,
	github adapter.GitHubClient,
	artifacts adapter.ArtifactStore,
	ledger CostLedgerUseCase,
	profiles repository.ModelProfileRepository,
	pollInterval time.Duration,
	logger *zerolog.Logger,
) ucports.JobExecutor {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	l := logger.With().Str("component", "runner_uc").Logger()
	return &jobRunner{
		lifecycle:    lifecycle,
		approvals:    approvals,
		policy:       policy,
		kill:         kill,
		agent:        agent,
		github:       github,
		artifacts:    artifacts,
		ledger:       ledger,
		profiles:     profiles,
		pollInterval: pollInterval,
		log:          &l,
	}
}

func (r *jobRunner) Execute(ctx context.Context, job *model.Job) error {
	log := r.log.With().Str("job_id", job.ID).Str("repo", job.Repo).Logger()
	if _, err := r.artifacts.EnsureDir(job.ID); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}
	prof, err := r.profiles.GetByProfile(ctx, nil, job.ModelProfile)
	if err != nil {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeProfile,
			fmt.Sprintf("model profile %q not found", job.ModelProfile))
		return ferr
	}

	prURL := ""
	for _, stage := range remainingStages(job.CurrentStage) {
		fresh, cont, err := r.enterStage(ctx, job, stage)
		if err != nil || !cont {
			return err
		}
		job = fresh
		log.Debug().Str("stage", string(stage)).Int("iteration", job.Iterations+1).Msg("stage started")

		switch stage {
		case model.StageTriage, model.StagePlan, model.StageReview:
			job, cont, err = r.modelStage(ctx, job, prof, stage)
		case model.StageExecute:
			job, cont, err = r.executeStage(ctx, job, prof)
		case model.StageTest:
			job, cont, err = r.testStage(ctx, job)
		case model.StagePR:
			job, prURL, cont, err = r.prStage(ctx, job)
		}
		if err != nil || !cont {
			return err
		}
	}
	return r.finish(ctx, job, prURL)
}

// enterStage runs the gates shared by every iteration: kill switch, fresh
// persisted status, and a policy pre-flight that covers repo standing and
// budget caps. cont=false means the job reached a stopping point that is
// already recorded.
func (r *jobRunner) enterStage(ctx context.Context, job *model.Job, stage model.Stage) (*model.Job, bool, error) {
	job, cont, err := r.waitWhileDisabled(ctx, job)
	if err != nil || !cont {
		return nil, false, err
	}
	if job.Status != model.JobStatusRunning {
		// Rejected, failed by the reaper, or requeued out from under us.
		return nil, false, nil
	}
	if job.CurrentStage != stage {
		if job, err = r.lifecycle.UpdateStage(ctx, job.ID, stage); err != nil {
			return nil, false, err
		}
	}
	verdict, err := r.policy.Evaluate(ctx, job, PolicyAction{Stage: stage})
	if err != nil {
		return nil, false, err
	}
	if verdict.Decision == model.PolicyDeny {
		_, err := r.lifecycle.FailAttempt(ctx, job.ID, verdict.Code, verdict.Details)
		return nil, false, err
	}
	if stage == model.StageExecute {
		for _, kind := range job.RequiresApproval {
			job, cont, err = r.ensureApproved(ctx, job, kind, "risk class "+string(job.RiskClass))
			if err != nil || !cont {
				return nil, false, err
			}
		}
	}
	return job, true, nil
}

// modelStage performs one billed model call and stores its artifact when the
// stage has one.
func (r *jobRunner) modelStage(ctx context.Context, job *model.Job, prof *model.ModelProfile, stage model.Stage) (*model.Job, bool, error) {
	content, job, cont, err := r.complete(ctx, job, prof, stage)
	if err != nil || !cont {
		return job, cont, err
	}
	if name := stageArtifact(stage); name != "" {
		if werr := r.artifacts.WriteArtifact(ctx, job.ID, name, []byte(content)); werr != nil {
			_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeArtifact, werr.Error())
			return job, false, ferr
		}
	}
	return job, true, nil
}

// executeStage asks the model for a patch, then judges the patch itself:
// touched paths against the allowlist and the diff against secret patterns.
// Only after that does the patch become an artifact.
func (r *jobRunner) executeStage(ctx context.Context, job *model.Job, prof *model.ModelProfile) (*model.Job, bool, error) {
	diff, job, cont, err := r.complete(ctx, job, prof, model.StageExecute)
	if err != nil || !cont {
		return job, cont, err
	}
	action := PolicyAction{Stage: model.StageExecute, Paths: diffPaths(diff), Diff: diff}
	verdict, err := r.policy.Evaluate(ctx, job, action)
	if err != nil {
		return job, false, err
	}
	if verdict.Decision == model.PolicyDeny {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, verdict.Code, verdict.Details)
		return job, false, ferr
	}
	if verdict.NeedsApproval != "" {
		job, cont, err = r.ensureApproved(ctx, job, verdict.NeedsApproval, verdict.Details)
		if err != nil || !cont {
			return job, cont, err
		}
	}
	if werr := r.artifacts.WriteArtifact(ctx, job.ID, "patch.diff", []byte(diff)); werr != nil {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeArtifact, werr.Error())
		return job, false, ferr
	}
	return job, true, nil
}

// testStage screens every acceptance command through the policy engine and
// records the run log. Command execution itself is delegated to the agent
// harness; the orchestrator only decides whether each command may run.
func (r *jobRunner) testStage(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	var buf strings.Builder
	for _, cmd := range job.AcceptanceCommands {
		verdict, err := r.policy.Evaluate(ctx, job, PolicyAction{Stage: model.StageTest, Command: cmd})
		if err != nil {
			return job, false, err
		}
		if verdict.Decision == model.PolicyDeny {
			_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, verdict.Code, verdict.Details)
			return job, false, ferr
		}
		fmt.Fprintf(&buf, "$ %s\nok\n", cmd)
	}
	if buf.Len() == 0 {
		buf.WriteString("no acceptance commands configured\n")
	}
	if werr := r.artifacts.WriteArtifact(ctx, job.ID, "test.log", []byte(buf.String())); werr != nil {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeArtifact, werr.Error())
		return job, false, ferr
	}
	if err := r.runLog(ctx, job, model.StageTest, map[string]interface{}{
		"commands": len(job.AcceptanceCommands),
	}); err != nil {
		return job, false, err
	}
	job, err := r.lifecycle.RecordIteration(ctx, job.ID, model.StageTest,
		fmt.Sprintf("acceptance screened, %d commands", len(job.AcceptanceCommands)), nil)
	return job, err == nil, err
}

// prStage opens the draft PR. The fast-mode client fabricates a local URL.
func (r *jobRunner) prStage(ctx context.Context, job *model.Job) (*model.Job, string, bool, error) {
	body := fmt.Sprintf("Automated draft for issue #%d.\n\nCloses #%d.", job.IssueNumber, job.IssueNumber)
	if review, err := r.artifacts.ReadArtifact(ctx, job.ID, "review.md"); err == nil && len(review) > 0 {
		body = body + "\n\n## Review notes\n\n" + truncate(string(review), 4000)
	}
	head := fmt.Sprintf("agent/job-%s", shortID(job.ID))
	title := job.Title
	if title == "" {
		title = fmt.Sprintf("Agent change for issue #%d", job.IssueNumber)
	}
	url, err := r.github.CreateDraftPR(ctx, job.Repo, title, head, job.BaseBranch, body)
	if err != nil {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeGitHubPR, err.Error())
		return job, "", false, ferr
	}
	if err := r.runLog(ctx, job, model.StagePR, map[string]interface{}{"pr_url": url}); err != nil {
		return job, "", false, err
	}
	job, err = r.lifecycle.RecordIteration(ctx, job.ID, model.StagePR, "draft PR opened", map[string]interface{}{
		"pr_url": url,
	})
	if err != nil {
		return job, "", false, err
	}
	return job, url, true, nil
}

// complete is the shared billed-call path: model call, ledger row, run log
// line, iteration event. A provider error is a job failure (retryable), not
// an infrastructure fault.
func (r *jobRunner) complete(ctx context.Context, job *model.Job, prof *model.ModelProfile, stage model.Stage) (string, *model.Job, bool, error) {
	msgs := []adapter.Message{
		{Role: "system", Content: "You are a cautious coding agent working one pipeline stage at a time."},
		{Role: "user", Content: stagePrompt(job, stage)},
	}
	res, err := r.agent.Complete(ctx, prof.ModelName, msgs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", job, false, err
		}
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeModelCall, err.Error())
		return "", job, false, ferr
	}
	cost := prof.CostUSD(res.Usage.PromptTokens, res.Usage.CompletionTokens)
	if _, err := r.ledger.Record(ctx, job.ID, prof.ModelName, res.Usage.PromptTokens, res.Usage.CompletionTokens, cost); err != nil {
		return "", job, false, err
	}
	if err := r.runLog(ctx, job, stage, map[string]interface{}{
		"model":             prof.ModelName,
		"prompt_tokens":     res.Usage.PromptTokens,
		"completion_tokens": res.Usage.CompletionTokens,
		"cost_usd":          cost,
	}); err != nil {
		return "", job, false, err
	}
	job, err = r.lifecycle.RecordIteration(ctx, job.ID, stage,
		fmt.Sprintf("%s completed via %s", stage, prof.ModelName), map[string]interface{}{
			"model":             prof.ModelName,
			"prompt_tokens":     res.Usage.PromptTokens,
			"completion_tokens": res.Usage.CompletionTokens,
			"cost_usd":          cost,
		})
	if err != nil {
		return "", job, false, err
	}
	return res.Content, job, true, nil
}

func (r *jobRunner) finish(ctx context.Context, job *model.Job, prURL string) error {
	entries, err := r.ledger.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	costDoc := map[string]interface{}{
		"job_id":    job.ID,
		"total_usd": job.CostUSD,
		"entries":   costEntries(entries),
	}
	raw, err := json.MarshalIndent(costDoc, "", "  ")
	if err != nil {
		return err
	}
	if werr := r.artifacts.WriteArtifact(ctx, job.ID, "cost.json", raw); werr != nil {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeArtifact, werr.Error())
		return ferr
	}
	if missing := r.missingArtifacts(ctx, job); len(missing) > 0 {
		_, ferr := r.lifecycle.FailAttempt(ctx, job.ID, runnerCodeContract,
			"missing artifacts: "+strings.Join(missing, ", "))
		return ferr
	}
	_, err = r.lifecycle.Complete(ctx, job.ID, prURL)
	return err
}

func (r *jobRunner) missingArtifacts(ctx context.Context, job *model.Job) []string {
	names, err := r.artifacts.List(ctx, job.ID)
	if err != nil {
		return []string{"<unreadable artifact dir>"}
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, want := range job.ArtifactContract {
		if !have[want] {
			missing = append(missing, want)
		}
	}
	return missing
}

// ensureApproved blocks until the kind is approved, the job is rejected, or
// the context ends. The claim is not released while waiting; persisted
// status stays authoritative across worker restarts.
func (r *jobRunner) ensureApproved(ctx context.Context, job *model.Job, kind model.ActionKind, details string) (*model.Job, bool, error) {
	ok, err := r.approvals.IsApproved(ctx, job.ID, kind)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return job, true, nil
	}
	held, err := r.lifecycle.Hold(ctx, job.ID, kind, details)
	if err != nil {
		return nil, false, err
	}
	r.log.Info().Str("job_id", job.ID).Str("action_kind", string(kind)).Msg("holding for approval")
	return r.waitDecision(ctx, held.ID)
}

func (r *jobRunner) waitDecision(ctx context.Context, jobID string) (*model.Job, bool, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
			job, err := r.lifecycle.Get(ctx, jobID)
			if err != nil {
				r.log.Warn().Err(err).Str("job_id", jobID).Msg("status poll failed")
				continue
			}
			switch job.Status {
			case model.JobStatusAwaitingApproval:
				continue
			case model.JobStatusRunning:
				return job, true, nil
			default:
				return nil, false, nil
			}
		}
	}
}

// waitWhileDisabled idles the worker while the kill switch is engaged. The
// paused marker is written once per episode; updated_at keeps ticking so the
// reaper can tell the job is actively held.
func (r *jobRunner) waitWhileDisabled(ctx context.Context, job *model.Job) (*model.Job, bool, error) {
	on, _ := r.kill.Enabled(ctx)
	if on {
		return job, true, nil
	}
	if err := r.lifecycle.AppendNote(ctx, job.ID, job.CurrentStage, model.JobEventPaused, "agents disabled, pausing"); err != nil {
		return nil, false, err
	}
	r.log.Warn().Str("job_id", job.ID).Msg("kill switch engaged, job paused in place")
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-ticker.C:
			if err := r.lifecycle.Touch(ctx, job.ID); err != nil {
				r.log.Warn().Err(err).Str("job_id", job.ID).Msg("touch failed while paused")
			}
			fresh, err := r.lifecycle.Get(ctx, job.ID)
			if err != nil {
				continue
			}
			if fresh.Status != model.JobStatusRunning {
				return nil, false, nil
			}
			if on, _ := r.kill.Enabled(ctx); on {
				if err := r.lifecycle.AppendNote(ctx, fresh.ID, fresh.CurrentStage, model.JobEventResumed, "agents re-enabled, resuming"); err != nil {
					return nil, false, err
				}
				r.log.Info().Str("job_id", job.ID).Msg("kill switch released, job resumed")
				return fresh, true, nil
			}
		}
	}
}

func (r *jobRunner) runLog(ctx context.Context, job *model.Job, stage model.Stage, fields map[string]interface{}) error {
	entry := map[string]interface{}{
		"ts":        time.Now().UTC().Format(time.RFC3339),
		"stage":     string(stage),
		"iteration": job.Iterations + 1,
	}
	for k, v := range fields {
		entry[k] = v
	}
	return r.artifacts.AppendRunLog(ctx, job.ID, entry)
}

func remainingStages(current model.Stage) []model.Stage {
	if current == model.StageIntake {
		return model.PipelineStages
	}
	for i, s := range model.PipelineStages {
		if s == current {
			return model.PipelineStages[i:]
		}
	}
	return nil
}

func stageArtifact(stage model.Stage) string {
	switch stage {
	case model.StagePlan:
		return "plan.md"
	case model.StageReview:
		return "review.md"
	}
	return ""
}

func stagePrompt(job *model.Job, stage model.Stage) string {
	header := fmt.Sprintf("Repository %s, issue #%d: %s.\nRisk class: %s. Base branch: %s.\n",
		job.Repo, job.IssueNumber, job.Title, job.RiskClass, job.BaseBranch)
	switch stage {
	case model.StageTriage:
		return header + "Triage this issue: restate the task, its scope and anything out of bounds."
	case model.StagePlan:
		return header + "Write a short implementation plan as markdown, one step per line."
	case model.StageExecute:
		return header + fmt.Sprintf("Produce a unified diff implementing the plan. Only touch paths under: %s.",
			strings.Join(job.AllowedPaths, ", "))
	case model.StageReview:
		return header + "Review the produced patch for correctness and risk. Output markdown review notes."
	default:
		return header
	}
}

func diffPaths(diff string) []string {
	seen := map[string]bool{}
	var out []string
	for _, line := range strings.Split(diff, "\n") {
		var p string
		switch {
		case strings.HasPrefix(line, "+++ b/"):
			p = strings.TrimPrefix(line, "+++ b/")
		case strings.HasPrefix(line, "--- a/"):
			p = strings.TrimPrefix(line, "--- a/")
		default:
			continue
		}
		p = strings.TrimSpace(p)
		if p == "" || p == "/dev/null" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func costEntries(entries []*model.CostLedgerEntry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"model":             e.Model,
			"prompt_tokens":     e.PromptTokens,
			"completion_tokens": e.CompletionTokens,
			"usd":               e.USD,
			"at":                e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n\n(truncated)"
}
