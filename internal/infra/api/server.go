package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/infra/security"
	"agent-orchestrator/internal/usecase"
)

// maxWebhookBody caps deliveries at 1 MiB. GitHub stays well under this.
const maxWebhookBody = 1 << 20

// Server is the unauthenticated surface: the GitHub webhook receiver and the
// health probe. Operator endpoints live in infra/web behind their own auth.
type Server struct {
	intakeUC usecase.IntakeUseCase
	verifier *security.WebhookVerifier
	log      *zerolog.Logger
}

func NewServer(intakeUC usecase.IntakeUseCase, verifier *security.WebhookVerifier, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "webhook_api").Logger()
	return &Server{intakeUC: intakeUC, verifier: verifier, log: &l}
}

// Register attaches handlers to the provided mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhooks/github", s.handleGitHubEvent)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// issueEventPayload is the subset of the issues event this service reads.
type issueEventPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int64  `json:"number"`
		Title  string `json:"title"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"issue"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
	Label struct {
		Name string `json:"name"`
	} `json:"label"`
}

func (s *Server) handleGitHubEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	event := r.Header.Get("X-GitHub-Event")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhookDelivery(event, "oversized")
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	// The signature covers the raw body. Nothing below runs without it.
	if s.verifier == nil || !s.verifier.Verify(body, r.Header.Get("X-Hub-Signature-256")) {
		metrics.IncWebhookDelivery(event, "unauthorized")
		s.log.Warn().Str("event", event).Str("delivery", r.Header.Get("X-GitHub-Delivery")).
			Msg("webhook signature rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch event {
	case "ping":
		metrics.IncWebhookDelivery(event, "accepted")
		w.WriteHeader(http.StatusNoContent)
		return
	case "issues":
	default:
		// The subscription can be broader than what intake handles.
		metrics.IncWebhookDelivery(event, "ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var payload issueEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.IncWebhookDelivery(event, "malformed")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	labels := make([]string, 0, len(payload.Issue.Labels)+1)
	for _, l := range payload.Issue.Labels {
		labels = append(labels, l.Name)
	}
	// A labeled event names the label that was just applied; on some
	// deliveries it is not yet part of issue.labels.
	if payload.Label.Name != "" {
		labels = append(labels, payload.Label.Name)
	}

	job, err := s.intakeUC.IntakeFromWebhook(r.Context(), usecase.WebhookIssueEvent{
		Action:      payload.Action,
		Repo:        payload.Repository.FullName,
		IssueNumber: payload.Issue.Number,
		Title:       payload.Issue.Title,
		Labels:      labels,
		Sender:      payload.Sender.Login,
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateIntake):
		// Redeliveries are expected; the job is already queued.
		metrics.IncWebhookDelivery(event, "duplicate")
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, domain.ErrRateLimited):
		metrics.IncWebhookDelivery(event, "rate_limited")
		http.Error(w, "Rate limited", http.StatusTooManyRequests)
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		metrics.IncWebhookDelivery(event, "malformed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, domain.ErrRepoDisabled):
		// Not an error GitHub can fix. Log it and acknowledge.
		metrics.IncWebhookDelivery(event, "declined")
		s.log.Warn().Str("repo", payload.Repository.FullName).Int64("issue", payload.Issue.Number).
			Msg("webhook intake declined, repo disabled or not onboarded")
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		metrics.IncWebhookDelivery(event, "error")
		s.log.Error().Err(err).Str("repo", payload.Repository.FullName).Int64("issue", payload.Issue.Number).
			Msg("webhook intake failed")
		http.Error(w, "Intake failed", http.StatusInternalServerError)
		return
	case job == nil:
		// Wrong action or no intake label.
		metrics.IncWebhookDelivery(event, "discarded")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	metrics.IncWebhookDelivery(event, "accepted")
	s.log.Info().Str("job_id", job.ID).Str("repo", job.Repo).Int64("issue", job.IssueNumber).
		Msg("webhook intake accepted")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(struct {
		JobID string `json:"job_id"`
	}{JobID: job.ID})
}
