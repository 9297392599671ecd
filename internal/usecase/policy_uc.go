// File: internal/usecase/policy_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

// Machine failure codes emitted by policy denials. ClassifyFailure maps each
// prefix back to its rule's failure reason.
const (
	PolicyCodeRepoNotAllowed = "REPO_NOT_ALLOWED"
	PolicyCodeRepoDisabled   = "REPO_DISABLED"
	PolicyCodePathViolation  = "ALLOWED_PATHS_VIOLATION"
	PolicyCodeSensitivePath  = "SENSITIVE_PATH_APPROVAL_REQUIRED"
	PolicyCodeBlockedCommand = "BLOCKED_COMMAND"
	PolicyCodeSecretInDiff   = "SECRET_PATTERN_DETECTED_IN_DIFF"
)

// PolicyAction is one proposed unit of agent work for the engine to judge:
// the paths a change touches, the command about to run, and the diff or
// output to scan.
type PolicyAction struct {
	Stage   model.Stage
	Paths   []string
	Command string
	Diff    string
}

// PolicyVerdict is the engine's answer. NeedsApproval set on an allow means
// the action may only proceed once an operator signs off that kind.
type PolicyVerdict struct {
	Decision      model.PolicyDecision
	Rule          model.PolicyRule
	Code          string
	Details       string
	NeedsApproval model.ActionKind
}

// Allowed reports an unconditional allow.
func (v *PolicyVerdict) Allowed() bool {
	return v.Decision == model.PolicyAllow && v.NeedsApproval == ""
}

// PolicyUseCase evaluates actions against the loaded snapshot. Rules run in a
// fixed order (domain, path, command, secret, budget) and the first deny
// wins. Every evaluation is audited, allow and deny alike.
type PolicyUseCase interface {
	Evaluate(ctx context.Context, job *model.Job, action PolicyAction) (*PolicyVerdict, error)
	// ValidateContract checks a job's static contract at intake: repo standing
	// and acceptance commands. The job row already exists so the decision is
	// auditable.
	ValidateContract(ctx context.Context, job *model.Job) (*PolicyVerdict, error)
	// RequiredApprovals resolves the action kinds a risk class implies.
	RequiredApprovals(risk model.RiskClass) []model.ActionKind
	Snapshot() *config.PolicySnapshot
	// Reload swaps in a newly compiled snapshot. A snapshot that fails to
	// compile leaves the active rules untouched.
	Reload(snap *config.PolicySnapshot) error
}

var _ PolicyUseCase = (*policyUC)(nil)

type policyUC struct {
	mu     sync.RWMutex
	rules  *policyRules
	repos  repository.RepoProfileRepository
	audits repository.PolicyAuditRepository
	caps   CapEnforcer
	log    *zerolog.Logger
}

// policyRules is one compiled snapshot. Reload swaps the whole value, so an
// evaluation in flight keeps the view it started with.
type policyRules struct {
	snap    *config.PolicySnapshot
	blocked []*regexp.Regexp
	secrets []*regexp.Regexp
}

// NewPolicyUseCase compiles the snapshot once. A pattern that does not
// compile is a deployment error, not something to skip silently.
func NewPolicyUseCase(
	snap *config.PolicySnapshot,
	repos repository.RepoProfileRepository,
	audits repository.PolicyAuditRepository,
	caps CapEnforcer,
	logger *zerolog.Logger,
) (PolicyUseCase, error) {
	rules, err := compileSnapshot(snap)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "policy_uc").Logger()
	return &policyUC{
		rules:  rules,
		repos:  repos,
		audits: audits,
		caps:   caps,
		log:    &l,
	}, nil
}

func compileSnapshot(snap *config.PolicySnapshot) (*policyRules, error) {
	blocked, err := compilePatterns(snap.BlockedCommands)
	if err != nil {
		return nil, fmt.Errorf("blocked_commands: %w", err)
	}
	secrets, err := compilePatterns(snap.SecretPatterns)
	if err != nil {
		return nil, fmt.Errorf("secret_patterns: %w", err)
	}
	return &policyRules{snap: snap, blocked: blocked, secrets: secrets}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (u *policyUC) current() *policyRules {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.rules
}

func (u *policyUC) Reload(snap *config.PolicySnapshot) error {
	rules, err := compileSnapshot(snap)
	if err != nil {
		return err
	}
	u.mu.Lock()
	u.rules = rules
	u.mu.Unlock()
	u.log.Info().
		Int("blocked_commands", len(rules.blocked)).
		Int("secret_patterns", len(rules.secrets)).
		Msg("policy snapshot reloaded")
	return nil
}

func (u *policyUC) Snapshot() *config.PolicySnapshot { return u.current().snap }

func (u *policyUC) RequiredApprovals(risk model.RiskClass) []model.ActionKind {
	names := u.current().snap.RiskClassActions[string(risk)]
	kinds := make([]model.ActionKind, 0, len(names))
	for _, n := range names {
		kinds = append(kinds, model.ActionKind(n))
	}
	return kinds
}

func (u *policyUC) Evaluate(ctx context.Context, job *model.Job, action PolicyAction) (*PolicyVerdict, error) {
	verdict, err := u.evaluate(ctx, job, action)
	if err != nil {
		return nil, err
	}
	if err := u.audit(ctx, job.ID, action, verdict); err != nil {
		return nil, err
	}
	if verdict.Decision == model.PolicyDeny {
		u.log.Warn().Str("job_id", job.ID).Str("rule", string(verdict.Rule)).Str("code", verdict.Code).Msg("policy denied action")
	}
	return verdict, nil
}

func (u *policyUC) evaluate(ctx context.Context, job *model.Job, action PolicyAction) (*PolicyVerdict, error) {
	rules := u.current()

	// Rule 1: domain_policy.
	if v, err := u.checkRepo(ctx, job.Repo); err != nil || v != nil {
		return v, err
	}

	// Rule 2: path_policy. Allowlist first, then the sensitive overlay.
	var gated model.ActionKind
	for _, raw := range action.Paths {
		p := cleanRepoPath(raw)
		if p == "" {
			continue
		}
		if !pathAllowed(p, job.AllowedPaths) {
			return &PolicyVerdict{
				Decision: model.PolicyDeny,
				Rule:     model.RulePathPolicy,
				Code:     PolicyCodePathViolation,
				Details:  fmt.Sprintf("path %q outside allowed paths", p),
			}, nil
		}
		if gated == "" && matchAnyPath(p, rules.snap.SensitivePaths) {
			gated = model.ActionKindInfra
		}
	}
	if gated != "" {
		return &PolicyVerdict{
			Decision:      model.PolicyAllow,
			Rule:          model.RulePathPolicy,
			Code:          PolicyCodeSensitivePath,
			Details:       "sensitive path requires sign-off",
			NeedsApproval: gated,
		}, nil
	}

	// Rule 3: command_policy.
	if action.Command != "" {
		if re := rules.matchBlocked(action.Command); re != nil {
			return &PolicyVerdict{
				Decision: model.PolicyDeny,
				Rule:     model.RuleCommandPolicy,
				Code:     PolicyCodeBlockedCommand,
				Details:  fmt.Sprintf("command matches blocked pattern %q", re.String()),
			}, nil
		}
	}

	// Rule 4: secret_guard.
	if action.Diff != "" {
		for _, re := range rules.secrets {
			if re.MatchString(action.Diff) {
				return &PolicyVerdict{
					Decision: model.PolicyDeny,
					Rule:     model.RuleSecretGuard,
					Code:     PolicyCodeSecretInDiff,
					Details:  fmt.Sprintf("diff matches secret pattern %q", re.String()),
				}, nil
			}
		}
	}

	// Rule 5: budget_cap, delegated to the cap enforcer so audits carry cap
	// denials in the same trail.
	if breach := u.caps.CheckJob(job, job.Iterations+1, time.Now()); breach != nil {
		return &PolicyVerdict{
			Decision: model.PolicyDeny,
			Rule:     model.RuleBudgetCap,
			Code:     breach.Code,
			Details:  breach.Details,
		}, nil
	}

	return &PolicyVerdict{Decision: model.PolicyAllow, Details: "all rules passed"}, nil
}

func (u *policyUC) ValidateContract(ctx context.Context, job *model.Job) (*PolicyVerdict, error) {
	rules := u.current()
	verdict := &PolicyVerdict{Decision: model.PolicyAllow, Details: "contract accepted"}
	if v, err := u.checkRepo(ctx, job.Repo); err != nil {
		return nil, err
	} else if v != nil {
		verdict = v
	} else {
		for _, cmd := range job.AcceptanceCommands {
			if re := rules.matchBlocked(cmd); re != nil {
				verdict = &PolicyVerdict{
					Decision: model.PolicyDeny,
					Rule:     model.RuleCommandPolicy,
					Code:     PolicyCodeBlockedCommand,
					Details:  fmt.Sprintf("acceptance command %q matches blocked pattern %q", cmd, re.String()),
				}
				break
			}
		}
	}
	if err := u.audit(ctx, job.ID, PolicyAction{Stage: model.StageIntake}, verdict); err != nil {
		return nil, err
	}
	return verdict, nil
}

func (u *policyUC) checkRepo(ctx context.Context, repo string) (*PolicyVerdict, error) {
	profile, err := u.repos.Get(ctx, nil, repo)
	if errors.Is(err, domain.ErrNotFound) {
		return &PolicyVerdict{
			Decision: model.PolicyDeny,
			Rule:     model.RuleDomainPolicy,
			Code:     PolicyCodeRepoNotAllowed,
			Details:  fmt.Sprintf("repo %q has no profile", repo),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if !profile.Enabled {
		return &PolicyVerdict{
			Decision: model.PolicyDeny,
			Rule:     model.RuleDomainPolicy,
			Code:     PolicyCodeRepoDisabled,
			Details:  fmt.Sprintf("repo %q is disabled", repo),
		}, nil
	}
	return nil, nil
}

func (r *policyRules) matchBlocked(command string) *regexp.Regexp {
	for _, re := range r.blocked {
		if re.MatchString(command) {
			return re
		}
	}
	return nil
}

// audit writes the trail row. An evaluation that cannot be audited does not
// count as evaluated.
func (u *policyUC) audit(ctx context.Context, jobID string, action PolicyAction, v *PolicyVerdict) error {
	details := v.Details
	if summary := summarizeAction(action); summary != "" {
		details = summary + ": " + details
	}
	entry := model.NewPolicyAuditEntry(jobID, v.Decision, v.Rule, details)
	return u.audits.Append(ctx, nil, entry)
}

func summarizeAction(action PolicyAction) string {
	parts := make([]string, 0, 3)
	if action.Stage != "" {
		parts = append(parts, "stage="+string(action.Stage))
	}
	if len(action.Paths) > 0 {
		parts = append(parts, fmt.Sprintf("paths=%d", len(action.Paths)))
	}
	if action.Command != "" {
		parts = append(parts, fmt.Sprintf("cmd=%q", action.Command))
	}
	return strings.Join(parts, " ")
}

func cleanRepoPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if p == "." {
		return ""
	}
	return p
}

// pathAllowed reports whether p falls inside the allowlist. An empty
// allowlist means the whole tree is writable.
func pathAllowed(p string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	return matchAnyPath(p, allowed)
}

func matchAnyPath(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchPathPattern(strings.TrimSpace(pattern), p) {
			return true
		}
	}
	return false
}

// matchPathPattern supports the pattern shapes used in repo profiles and the
// sensitive path list: "dir/**" for a subtree, "**/name" for any depth,
// shell globs for a single segment, "dir/" as a prefix, and bare names as
// exact file or directory matches.
func matchPathPattern(pattern, p string) bool {
	switch {
	case pattern == "":
		return false
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return p == prefix || strings.HasPrefix(p, prefix+"/")
	case strings.HasPrefix(pattern, "**/"):
		tail := strings.TrimPrefix(pattern, "**/")
		if !strings.Contains(tail, "/") {
			if ok, _ := path.Match(tail, path.Base(p)); ok {
				return true
			}
		}
		return p == tail || strings.HasSuffix(p, "/"+tail)
	case strings.ContainsAny(pattern, "*?["):
		ok, _ := path.Match(pattern, p)
		return ok
	case strings.HasSuffix(pattern, "/"):
		return strings.HasPrefix(p, pattern)
	default:
		return p == pattern || strings.HasPrefix(p, pattern+"/")
	}
}
