package adapter

import "context"

// IssueRef identifies an issue created on the forge.
type IssueRef struct {
	Number int64
	URL    string
}

// GitHubClient is the port for forge writes. The fast-mode implementation
// performs none.
type GitHubClient interface {
	Name() string

	CreateIssue(ctx context.Context, repo, title, body string, labels []string) (IssueRef, error)
	// CreateDraftPR opens a draft pull request and returns its URL.
	CreateDraftPR(ctx context.Context, repo, title, head, base, body string) (string, error)
	AddComment(ctx context.Context, repo string, issueNumber int64, body string) error
	AddLabels(ctx context.Context, repo string, issueNumber int64, labels []string) error
}
