package agent

import (
	"context"
	"errors"

	"agent-orchestrator/internal/domain/ports/adapter"
)

var errNoProvider = errors.New("agent: no provider configured")

var _ adapter.CodingAgent = (*limitedAgent)(nil)

// limitedAgent bounds concurrent provider calls with a semaphore.
type limitedAgent struct {
	inner adapter.CodingAgent
	sem   chan struct{}
}

func NewLimitedAgent(inner adapter.CodingAgent, maxConcurrent int) adapter.CodingAgent {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAgent{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAgent) Name() string { return l.inner.Name() }

func (l *limitedAgent) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedAgent) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if err := l.acquire(ctx); err != nil {
		return 0, err
	}
	defer func() { <-l.sem }()
	return l.inner.CountTokens(ctx, model, messages)
}

func (l *limitedAgent) Complete(ctx context.Context, model string, messages []adapter.Message) (*adapter.CompletionResult, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, model, messages)
}
