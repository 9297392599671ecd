package github

import (
	"context"
	"fmt"
	"sync"

	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.GitHubClient = (*NoopClient)(nil)

// NoopClient is the fast-mode forge: nothing leaves the process. Created
// issues and PRs are kept in memory so the demo and tests can inspect them.
type NoopClient struct {
	mu     sync.Mutex
	seq    int64
	Issues []adapter.IssueRef
	PRs    []string
}

func NewNoopClient() *NoopClient {
	return &NoopClient{seq: 1000}
}

func (c *NoopClient) Name() string { return "noop" }

func (c *NoopClient) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (adapter.IssueRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	ref := adapter.IssueRef{
		Number: c.seq,
		URL:    fmt.Sprintf("https://github.local/%s/issues/%d", repo, c.seq),
	}
	c.Issues = append(c.Issues, ref)
	return ref, nil
}

func (c *NoopClient) CreateDraftPR(ctx context.Context, repo, title, head, base, body string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	url := fmt.Sprintf("https://github.local/%s/pull/%d", repo, c.seq)
	c.PRs = append(c.PRs, url)
	return url, nil
}

func (c *NoopClient) AddComment(ctx context.Context, repo string, issueNumber int64, body string) error {
	return nil
}

func (c *NoopClient) AddLabels(ctx context.Context, repo string, issueNumber int64, labels []string) error {
	return nil
}
