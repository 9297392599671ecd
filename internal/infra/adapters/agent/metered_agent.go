package agent

import (
	"context"
	"time"

	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/infra/metrics"
)

var _ adapter.CodingAgent = (*meteredAgent)(nil)

// meteredAgent exports usage counters for every completion. Cost is priced
// from the active model profiles; an unknown model records zero cost but
// still counts tokens and latency.
type meteredAgent struct {
	inner    adapter.CodingAgent
	profiles repository.ModelProfileRepository
}

func NewMeteredAgent(inner adapter.CodingAgent, profiles repository.ModelProfileRepository) adapter.CodingAgent {
	return &meteredAgent{inner: inner, profiles: profiles}
}

func (m *meteredAgent) Name() string { return m.inner.Name() }

func (m *meteredAgent) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return m.inner.CountTokens(ctx, model, messages)
}

func (m *meteredAgent) Complete(ctx context.Context, model string, messages []adapter.Message) (*adapter.CompletionResult, error) {
	start := time.Now()
	res, err := m.inner.Complete(ctx, model, messages)
	latencyMs := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveAgentUsage(m.inner.Name(), model, 0, 0, 0, 0, latencyMs, false)
		return nil, err
	}
	u := res.Usage
	metrics.ObserveAgentUsage(m.inner.Name(), model,
		u.PromptTokens, u.CompletionTokens, u.TotalTokens,
		m.costMicros(ctx, model, u), latencyMs, true)
	return res, nil
}

func (m *meteredAgent) costMicros(ctx context.Context, model string, u adapter.Usage) int64 {
	if m.profiles == nil {
		return 0
	}
	profs, err := m.profiles.ListActive(ctx, nil)
	if err != nil {
		return 0
	}
	for _, p := range profs {
		if p.ModelName == model {
			return int64(u.PromptTokens)*p.InputTokenPriceMicros + int64(u.CompletionTokens)*p.OutputTokenPriceMicros
		}
	}
	return 0
}
