package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/infra/security"
	"agent-orchestrator/internal/usecase"
)

const testIntakeLabel = "agent-ready"

// memIntakeUC mirrors the real webhook filter: wrong actions and unlabeled
// issues are discarded with (nil, nil).
type memIntakeUC struct {
	usecase.IntakeUseCase // Embed interface
	err                   error
	calls                 int
	last                  usecase.WebhookIssueEvent
}

func (m *memIntakeUC) IntakeFromWebhook(ctx context.Context, ev usecase.WebhookIssueEvent) (*model.Job, error) {
	m.calls++
	m.last = ev
	if m.err != nil {
		return nil, m.err
	}
	switch ev.Action {
	case "opened", "reopened", "labeled":
	default:
		return nil, nil
	}
	labeled := false
	for _, l := range ev.Labels {
		if l == testIntakeLabel {
			labeled = true
		}
	}
	if !labeled {
		return nil, nil
	}
	return model.NewJob(ev.Repo, ev.IssueNumber, ev.Title, "main",
		model.RiskClassCode, model.ProfileBuild, "webhook:"+ev.Sender,
		model.Caps{MaxMinutes: 30, MaxIterations: 20, MaxUSD: 5}), nil
}

func newWebhookMux(t *testing.T, intake usecase.IntakeUseCase) (*http.ServeMux, *security.WebhookVerifier) {
	t.Helper()
	logger := zerolog.New(nil)
	verifier, err := security.NewWebhookVerifier("hook-secret")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	s := NewServer(intake, verifier, &logger)
	mux := http.NewServeMux()
	s.Register(mux)
	return mux, verifier
}

func deliver(mux *http.ServeMux, verifier *security.WebhookVerifier, event, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	if verifier != nil {
		req.Header.Set("X-Hub-Signature-256", verifier.Sign([]byte(body)))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

const labeledEvent = `{
	"action": "labeled",
	"issue": {"number": 42, "title": "Fix flaky retry test", "labels": [{"name": "bug"}]},
	"repository": {"full_name": "acme/widgets"},
	"sender": {"login": "alice"},
	"label": {"name": "agent-ready"}
}`

func TestWebhookSignature(t *testing.T) {
	t.Run("unsigned delivery", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, _ := newWebhookMux(t, intake)
		rec := deliver(mux, nil, "issues", labeledEvent)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d, body=%s", rec.Code, rec.Body.String())
		}
		if intake.calls != 0 {
			t.Fatal("intake must not run for unsigned deliveries")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, _ := newWebhookMux(t, intake)
		wrong, err := security.NewWebhookVerifier("other-secret")
		if err != nil {
			t.Fatalf("verifier: %v", err)
		}
		rec := deliver(mux, wrong, "issues", labeledEvent)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
		if intake.calls != 0 {
			t.Fatal("intake must not run for bad signatures")
		}
	})

	t.Run("signed ping", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "ping", `{"zen":"Keep it logically awesome."}`)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d", rec.Code)
		}
	})
}

func TestWebhookIssueIntake(t *testing.T) {
	t.Run("labeled issue queues a job", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", labeledEvent)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.JobID == "" {
			t.Fatal("expected a job id in the response")
		}
		if intake.last.Repo != "acme/widgets" || intake.last.IssueNumber != 42 || intake.last.Sender != "alice" {
			t.Fatalf("event not forwarded: %+v", intake.last)
		}
		// The just-applied label is merged with issue.labels.
		joined := strings.Join(intake.last.Labels, ",")
		if !strings.Contains(joined, "bug") || !strings.Contains(joined, "agent-ready") {
			t.Fatalf("labels not merged: %v", intake.last.Labels)
		}
	})

	t.Run("unhandled action", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, verifier := newWebhookMux(t, intake)
		body := strings.Replace(labeledEvent, `"labeled"`, `"closed"`, 1)
		rec := deliver(mux, verifier, "issues", body)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("no intake label", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, verifier := newWebhookMux(t, intake)
		body := strings.ReplaceAll(labeledEvent, "agent-ready", "help-wanted")
		rec := deliver(mux, verifier, "issues", body)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("non-issues event", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "push", `{"ref":"refs/heads/main"}`)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d", rec.Code)
		}
		if intake.calls != 0 {
			t.Fatal("intake must not run for non-issues events")
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", `{"action":`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("duplicate delivery", func(t *testing.T) {
		intake := &memIntakeUC{err: fmt.Errorf("issue already has live job j-1: %w", domain.ErrDuplicateIntake)}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", labeledEvent)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		intake := &memIntakeUC{err: fmt.Errorf("repo acme/widgets: %w", domain.ErrRateLimited)}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", labeledEvent)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("want 429, got %d", rec.Code)
		}
	})

	t.Run("unknown risk label", func(t *testing.T) {
		intake := &memIntakeUC{err: fmt.Errorf("unknown risk label %q: %w", "risk:everything", domain.ErrInvalidArgument)}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", labeledEvent)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("repo not onboarded", func(t *testing.T) {
		intake := &memIntakeUC{err: fmt.Errorf("repo %q is not onboarded: %w", "acme/widgets", domain.ErrRepoDisabled)}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", labeledEvent)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("want 204, got %d, body=%s", rec.Code, rec.Body.String())
		}
	})

	t.Run("intake failure", func(t *testing.T) {
		intake := &memIntakeUC{err: fmt.Errorf("save job: %w", domain.ErrOperationFailed)}
		mux, verifier := newWebhookMux(t, intake)
		rec := deliver(mux, verifier, "issues", labeledEvent)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("want 500, got %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		intake := &memIntakeUC{}
		mux, _ := newWebhookMux(t, intake)
		req := httptest.NewRequest(http.MethodGet, "/webhooks/github", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("want 405, got %d", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	mux, _ := newWebhookMux(t, &memIntakeUC{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
