package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.CodingAgent = (*LocalAgent)(nil)

const localNotesFile = "AGENT_NOTES.md"

// LocalAgent fabricates deterministic stage outputs without any network
// calls. Fast mode runs the whole pipeline against it, so every orchestrator
// path (caps, policy, approvals, artifacts) can be exercised on a laptop.
type LocalAgent struct {
	delay time.Duration
}

func NewLocalAgent() *LocalAgent {
	return &LocalAgent{delay: 10 * time.Millisecond}
}

func (a *LocalAgent) Name() string { return "fast" }

func (a *LocalAgent) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return estimateTokens(model, messages), nil
}

func (a *LocalAgent) Complete(ctx context.Context, model string, messages []adapter.Message) (*adapter.CompletionResult, error) {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	prompt := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.ToLower(messages[i].Role) == "user" {
			prompt = messages[i].Content
			break
		}
	}
	content := a.respond(prompt)
	promptTokens := estimateTokens(model, messages)
	completionTokens := len(content)/4 + 1
	return &adapter.CompletionResult{
		Content: content,
		Model:   model,
		Usage: adapter.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

func (a *LocalAgent) respond(prompt string) string {
	header, _, _ := strings.Cut(prompt, "\n")
	switch {
	case strings.Contains(prompt, "Triage this issue"):
		return fmt.Sprintf("## Triage\n\n%s\n\nIn scope: the change described by the issue title.\nOut of scope: refactors, dependency upgrades, anything outside the allowed paths.\n", header)
	case strings.Contains(prompt, "implementation plan"):
		return fmt.Sprintf("# Plan\n\n1. Reproduce the reported behavior.\n2. Apply the smallest change that addresses %s\n3. Run the acceptance commands.\n4. Summarize the change for review.\n", header)
	case strings.Contains(prompt, "unified diff"):
		return localDiff(allowedPathsFromPrompt(prompt))
	case strings.Contains(prompt, "Review the produced patch"):
		return "## Review\n\n- Patch stays inside the allowed paths.\n- No commands outside the acceptance list.\n- Change is minimal and reversible.\n\nLGTM.\n"
	default:
		return "Acknowledged: " + header + "\n"
	}
}

// allowedPathsFromPrompt recovers the allowlist the runner embeds in the
// execute prompt, so the fabricated diff lands inside it.
func allowedPathsFromPrompt(prompt string) []string {
	_, rest, ok := strings.Cut(prompt, "Only touch paths under: ")
	if !ok {
		return nil
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ".")
	if rest == "" {
		return nil
	}
	parts := strings.Split(rest, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func localDiff(allowed []string) string {
	target := localNotesFile
	for _, pattern := range allowed {
		if p := concretePath(pattern); p != "" {
			target = p
			break
		}
	}
	return fmt.Sprintf(`--- a/%s
+++ b/%s
@@ -0,0 +1,3 @@
+# Agent notes
+
+Automated change produced in fast mode.
`, target, target)
}

// concretePath turns an allowlist pattern into one path matching it:
// the literal prefix before the first glob metacharacter, joined with a
// notes file name. A glob-free pattern that already names a file is used
// as is.
func concretePath(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return ""
	}
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		pattern = pattern[:i]
	}
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return localNotesFile
	}
	base := pattern[strings.LastIndex(pattern, "/")+1:]
	if strings.Contains(base, ".") {
		return pattern
	}
	return pattern + "/" + localNotesFile
}
