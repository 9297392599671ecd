package agent

import (
	"context"
	"strings"

	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.CodingAgent = (*MultiAgent)(nil)

// MultiAgent routes by model name so one wiring can serve profiles bound to
// different providers. Each provider agent keeps its own default model.
type MultiAgent struct {
	defaultProvider string
	byProvider      map[string]adapter.CodingAgent
}

func NewMultiAgent(defaultProvider string, byProvider map[string]adapter.CodingAgent) *MultiAgent {
	return &MultiAgent{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
	}
}

func (m *MultiAgent) Name() string { return "multi" }

func (m *MultiAgent) resolveProvider(model string) string {
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt") || strings.HasPrefix(l, "o1") || strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAgent) pick(model string) adapter.CodingAgent {
	if a := m.byProvider[m.resolveProvider(model)]; a != nil {
		return a
	}
	// last resort: first available
	for _, a := range m.byProvider {
		if a != nil {
			return a
		}
	}
	return nil
}

func (m *MultiAgent) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a := m.pick(model)
	if a == nil {
		return 0, nil
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAgent) Complete(ctx context.Context, model string, messages []adapter.Message) (*adapter.CompletionResult, error) {
	a := m.pick(model)
	if a == nil {
		return nil, errNoProvider
	}
	return a.Complete(ctx, model, messages)
}
