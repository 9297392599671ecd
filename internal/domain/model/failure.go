package model

import "strings"

// FailureReason is the terminal taxonomy code recorded on a failed job.
type FailureReason string

const (
	FailureBudgetCap      FailureReason = "budget_cap"
	FailureCommandPolicy  FailureReason = "command_policy"
	FailurePathPolicy     FailureReason = "path_policy"
	FailureDomainPolicy   FailureReason = "domain_policy"
	FailureSecretGuard    FailureReason = "secret_guard"
	FailureAcceptanceTest FailureReason = "acceptance_test"
	FailureGitFailure     FailureReason = "git_failure"
	FailureGitHubAPI      FailureReason = "github_api"
	FailureRuntimeError   FailureReason = "runtime_error"
	FailureApprovalGate   FailureReason = "approval_gate"
)

// Transient reports whether the reason is worth retrying. Policy and cap
// reasons are structural and never retried.
func (r FailureReason) Transient() bool {
	switch r {
	case FailureGitFailure, FailureGitHubAPI, FailureRuntimeError:
		return true
	}
	return false
}

// NormalizeFailure reduces a raw failure string to its stable code: the
// segment before the first ":", trimmed and uppercased. "GIT_PUSH: remote
// rejected" normalizes to "GIT_PUSH".
func NormalizeFailure(raw string) string {
	code := raw
	if i := strings.Index(raw, ":"); i >= 0 {
		code = raw[:i]
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// ClassifyFailure maps a normalized failure code to its taxonomy reason.
// Unknown codes fall through to runtime_error.
func ClassifyFailure(code string) FailureReason {
	code = NormalizeFailure(code)
	switch {
	case strings.HasPrefix(code, "CAP_"), code == "JOB_TIMEOUT":
		return FailureBudgetCap
	case code == "BLOCKED_COMMAND":
		return FailureCommandPolicy
	case code == "ALLOWED_PATHS_VIOLATION", strings.HasPrefix(code, "SENSITIVE_PATH"):
		return FailurePathPolicy
	case strings.HasPrefix(code, "REPO_"):
		return FailureDomainPolicy
	case strings.HasPrefix(code, "SECRET_PATTERN"):
		return FailureSecretGuard
	case strings.HasPrefix(code, "ACCEPTANCE_"):
		return FailureAcceptanceTest
	case strings.HasPrefix(code, "GITHUB_"):
		return FailureGitHubAPI
	case strings.HasPrefix(code, "GIT_"):
		return FailureGitFailure
	case strings.HasPrefix(code, "APPROVAL_"):
		return FailureApprovalGate
	default:
		return FailureRuntimeError
	}
}
