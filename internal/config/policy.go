// File: internal/config/policy.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PolicySnapshot is the raw rule set the policy engine compiles and evaluates
// against. It is loaded once at start and replaced wholesale on reload; the
// engine never reads mutable global configuration.
type PolicySnapshot struct {
	// BlockedCommands are regular expressions matched against proposed
	// commands.
	BlockedCommands []string `yaml:"blocked_commands"`
	// SecretPatterns are regular expressions matched against diffs and
	// captured output.
	SecretPatterns []string `yaml:"secret_patterns"`
	// SensitivePaths are path patterns that force human sign-off even when
	// inside the allowlist. "dir/**" matches the whole subtree.
	SensitivePaths []string `yaml:"sensitive_paths"`
	// ApprovalRequiredActions are action kinds that always pause for
	// sign-off.
	ApprovalRequiredActions []string `yaml:"approval_required_actions"`
	// RiskClassActions maps a risk class to action kinds it implies approval
	// for.
	RiskClassActions map[string][]string `yaml:"risk_class_actions"`
}

// DefaultPolicySnapshot mirrors the shipped policy.yaml, used when no policy
// file is configured.
func DefaultPolicySnapshot() *PolicySnapshot {
	return &PolicySnapshot{
		BlockedCommands: []string{
			`rm\s+-rf\s+/`,
			`curl[^|]*\|\s*(ba)?sh`,
			`wget[^|]*\|\s*(ba)?sh`,
			`\bsudo\b`,
			`git\s+push\s+.*--force`,
			`\bdd\b.*of=/dev/`,
			`\bmkfs\b`,
			`:\(\)\s*\{.*\}\s*;\s*:`,
		},
		SecretPatterns: []string{
			`AKIA[0-9A-Z]{16}`,
			`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`,
			`ghp_[A-Za-z0-9]{36}`,
			`github_pat_[A-Za-z0-9_]{22,}`,
			`sk-[A-Za-z0-9]{20,}`,
			`(?i)(api[_-]?key|secret|token|password)\s*[:=]\s*['"][^'"]{8,}['"]`,
		},
		SensitivePaths: []string{
			".github/workflows/**",
			"deploy/**",
			"secrets/**",
			"**/*.pem",
			"**/*.key",
			".env",
			"**/.env",
		},
		ApprovalRequiredActions: []string{"merge", "infra", "secrets", "destructive"},
		RiskClassActions: map[string][]string{
			"infra":       {"infra"},
			"secrets":     {"secrets"},
			"destructive": {"destructive"},
		},
	}
}

// LoadPolicySnapshot reads a policy yaml. An empty path returns the defaults.
func LoadPolicySnapshot(path string) (*PolicySnapshot, error) {
	if path == "" {
		return DefaultPolicySnapshot(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var snap PolicySnapshot
	if err := yaml.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if len(snap.ApprovalRequiredActions) == 0 {
		snap.ApprovalRequiredActions = DefaultPolicySnapshot().ApprovalRequiredActions
	}
	return &snap, nil
}
