package model

import (
	"time"

	"github.com/google/uuid"
)

type PolicyDecision string

const (
	PolicyAllow PolicyDecision = "allow"
	PolicyDeny  PolicyDecision = "deny"
)

// PolicyRule identifies which rule category produced a decision. Rules are
// evaluated in the order listed here; the first deny short-circuits.
type PolicyRule string

const (
	RuleDomainPolicy  PolicyRule = "domain_policy"
	RulePathPolicy    PolicyRule = "path_policy"
	RuleCommandPolicy PolicyRule = "command_policy"
	RuleSecretGuard   PolicyRule = "secret_guard"
	RuleBudgetCap     PolicyRule = "budget_cap"
)

// PolicyAuditEntry records every evaluation, allow and deny alike, so the
// reason a job proceeded stays reconstructible after the fact.
type PolicyAuditEntry struct {
	ID        string
	JobID     string
	Decision  PolicyDecision
	RuleID    PolicyRule
	Details   string
	CreatedAt time.Time
}

func NewPolicyAuditEntry(jobID string, decision PolicyDecision, rule PolicyRule, details string) *PolicyAuditEntry {
	return &PolicyAuditEntry{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Decision:  decision,
		RuleID:    rule,
		Details:   details,
		CreatedAt: time.Now(),
	}
}
