package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.GitHubClient = (*AppClient)(nil)

// AppClient performs forge writes through the REST API, authenticated as a
// GitHub App installation.
type AppClient struct {
	apiBase string
	tokens  *appTokenSource
	client  *http.Client
}

func NewAppClient(cfg *config.GitHubConfig) (*AppClient, error) {
	if cfg.AppID == 0 || cfg.InstallationID == 0 {
		return nil, errors.New("github: app_id and installation_id required")
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.github.com"
	}
	hc := &http.Client{Timeout: 15 * time.Second}
	tokens, err := newAppTokenSource(cfg.AppID, cfg.InstallationID, cfg.PrivateKeyPath, base, hc)
	if err != nil {
		return nil, err
	}
	return &AppClient{apiBase: base, tokens: tokens, client: hc}, nil
}

func (c *AppClient) Name() string { return "github" }

func (c *AppClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github %s %s: http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *AppClient) CreateIssue(ctx context.Context, repo, title, body string, labels []string) (adapter.IssueRef, error) {
	payload := map[string]interface{}{"title": title, "body": body}
	if len(labels) > 0 {
		payload["labels"] = labels
	}
	var out struct {
		Number  int64  `json:"number"`
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/issues", payload, &out); err != nil {
		return adapter.IssueRef{}, err
	}
	return adapter.IssueRef{Number: out.Number, URL: out.HTMLURL}, nil
}

func (c *AppClient) CreateDraftPR(ctx context.Context, repo, title, head, base, body string) (string, error) {
	payload := map[string]interface{}{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  body,
		"draft": true,
	}
	var out struct {
		HTMLURL string `json:"html_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/pulls", payload, &out); err != nil {
		return "", err
	}
	return out.HTMLURL, nil
}

func (c *AppClient) AddComment(ctx context.Context, repo string, issueNumber int64, body string) error {
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/repos/%s/issues/%d/comments", repo, issueNumber),
		map[string]interface{}{"body": body}, nil)
}

func (c *AppClient) AddLabels(ctx context.Context, repo string, issueNumber int64, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost,
		fmt.Sprintf("/repos/%s/issues/%d/labels", repo, issueNumber),
		map[string]interface{}{"labels": labels}, nil)
}
