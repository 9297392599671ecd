package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/infra/metrics"
	"agent-orchestrator/internal/usecase"
)

// Request bodies accepted by the operator API.

type jobCreateRequest struct {
	Repo               string   `json:"repo"`
	IssueNumber        int64    `json:"issue_number"`
	Title              string   `json:"title"`
	RiskClass          string   `json:"risk_class"`
	ModelProfile       string   `json:"model_profile"`
	BaseBranch         string   `json:"base_branch"`
	AllowedPaths       []string `json:"allowed_paths"`
	AcceptanceCommands []string `json:"acceptance_commands"`
	CreatedBy          string   `json:"created_by"`
	MaxMinutes         int      `json:"max_minutes"`
	MaxIterations      int      `json:"max_iterations"`
	MaxUSD             float64  `json:"max_usd"`
}

type textIntakeRequest struct {
	Repo         string `json:"repo"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	RiskClass    string `json:"risk_class"`
	ModelProfile string `json:"model_profile"`
	CreatedBy    string `json:"created_by"`
}

type approveRequest struct {
	Kind   string `json:"kind"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type rejectRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type killSwitchRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

type incidentCreateRequest struct {
	Severity string `json:"severity"`
	Details  string `json:"details"`
}

type modelProfileRequest struct {
	ModelName              string `json:"model_name"`
	InputTokenPriceMicros  int64  `json:"input_price_micros"`
	OutputTokenPriceMicros int64  `json:"output_price_micros"`
	Active                 bool   `json:"active"`
}

type repoProfileRequest struct {
	Enabled            *bool    `json:"enabled"`
	DefaultBranch      string   `json:"default_branch"`
	AllowedPaths       []string `json:"allowed_paths"`
	AcceptanceCommands []string `json:"acceptance_commands"`
}

// statusForError maps domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 and the original error stays out of the response.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrDuplicateIntake):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRepoDisabled), errors.Is(err, domain.ErrCapExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrAgentsDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		http.Error(w, "Internal error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody tolerates an empty body for endpoints where every field has a
// default. The kill switch must stay usable from a bare curl.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// jobsListHandler returns recent jobs, optionally filtered by status.
func jobsListHandler(lifecycleUC usecase.LifecycleUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 50 // Default page size
		}
		status := model.JobStatus(r.URL.Query().Get("status"))
		if status != "" {
			switch status {
			case model.JobStatusQueued, model.JobStatusRunning, model.JobStatusAwaitingApproval,
				model.JobStatusCompleted, model.JobStatusRejected, model.JobStatusFailed:
			default:
				http.Error(w, "Unknown status filter", http.StatusBadRequest)
				return
			}
		}

		jobs, err := lifecycleUC.List(ctx, status, limit)
		if err != nil {
			http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data   []*model.Job `json:"data"`
			Count  int          `json:"count"`
			Limit  int          `json:"limit"`
			Status string       `json:"status,omitempty"`
		}{
			Data:   jobs,
			Count:  len(jobs),
			Limit:  limit,
			Status: string(status),
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func jobGetHandler(lifecycleUC usecase.LifecycleUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")

		job, events, err := lifecycleUC.GetWithEvents(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}

		response := struct {
			Job    *model.Job        `json:"job"`
			Events []*model.JobEvent `json:"events"`
		}{
			Job:    job,
			Events: events,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// jobCreateHandler queues a job against an existing issue.
func jobCreateHandler(intakeUC usecase.IntakeUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req jobCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		p := usecase.CreateJobParams{
			Repo:               req.Repo,
			IssueNumber:        req.IssueNumber,
			Title:              req.Title,
			RiskClass:          model.RiskClass(req.RiskClass),
			ModelProfile:       req.ModelProfile,
			CreatedBy:          req.CreatedBy,
			BaseBranch:         req.BaseBranch,
			AllowedPaths:       req.AllowedPaths,
			AcceptanceCommands: req.AcceptanceCommands,
		}
		if req.MaxMinutes > 0 || req.MaxIterations > 0 || req.MaxUSD > 0 {
			p.Caps = &model.Caps{
				MaxMinutes:    req.MaxMinutes,
				MaxIterations: req.MaxIterations,
				MaxUSD:        req.MaxUSD,
			}
		}

		job, err := intakeUC.CreateJob(ctx, p)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

// textIntakeHandler files an issue for a free-text task and queues the job.
func textIntakeHandler(intakeUC usecase.IntakeUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req textIntakeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		job, err := intakeUC.IntakeFromText(ctx, usecase.TextIntakeParams{
			Repo:         req.Repo,
			Title:        req.Title,
			Body:         req.Body,
			RiskClass:    model.RiskClass(req.RiskClass),
			ModelProfile: req.ModelProfile,
			CreatedBy:    req.CreatedBy,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func approveHandler(approvalUC usecase.ApprovalUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")

		var req approveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Actor == "" {
			req.Actor = "operator"
		}

		job, err := approvalUC.Approve(ctx, id, model.ActionKind(req.Kind), req.Actor, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.IncApproval(req.Kind, "approved")
		writeJSON(w, http.StatusOK, job)
	}
}

func rejectHandler(approvalUC usecase.ApprovalUseCase, lifecycleUC usecase.LifecycleUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")

		var req rejectRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Actor == "" {
			req.Actor = "operator"
		}

		// Rejecting clears the pending kind from the job, so read it first to
		// keep the kind label on the decision counter.
		kind := "none"
		if prior, err := lifecycleUC.Get(ctx, id); err == nil && prior.PendingAction != "" {
			kind = string(prior.PendingAction)
		}

		job, err := approvalUC.Reject(ctx, id, req.Actor, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		metrics.IncApproval(kind, "rejected")
		writeJSON(w, http.StatusOK, job)
	}
}

func approvalsListHandler(approvalUC usecase.ApprovalUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")

		items, err := approvalUC.ListByJob(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}

		response := struct {
			Data []*model.Approval `json:"data"`
		}{
			Data: items,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func jobLedgerHandler(ledgerUC usecase.CostLedgerUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")

		entries, err := ledgerUC.ListByJob(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		total, err := ledgerUC.JobSpend(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}

		response := struct {
			Data     []*model.CostLedgerEntry `json:"data"`
			TotalUSD float64                  `json:"total_usd"`
		}{
			Data:     entries,
			TotalUSD: total,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func artifactsListHandler(store adapter.ArtifactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")

		names, err := store.List(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}

		response := struct {
			Data []string `json:"data"`
		}{
			Data: names,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func artifactReadHandler(store adapter.ArtifactStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "jobID")
		name := chi.URLParam(r, "name")

		data, err := store.ReadArtifact(ctx, id, name)
		if err != nil {
			writeError(w, err)
			return
		}

		if filepath.Ext(name) == ".json" {
			w.Header().Set("Content-Type", "application/json")
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func killSwitchGetHandler(killSwitchUC usecase.KillSwitchUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabled, err := killSwitchUC.Enabled(r.Context())
		if err != nil {
			http.Error(w, "Failed to read kill switch", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Enabled bool `json:"enabled"`
		}{Enabled: enabled})
	}
}

func killSwitchEnableHandler(killSwitchUC usecase.KillSwitchUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req killSwitchRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Actor == "" {
			req.Actor = "operator"
		}

		if err := killSwitchUC.Enable(r.Context(), req.Actor); err != nil {
			http.Error(w, "Failed to enable agents", http.StatusInternalServerError)
			return
		}
		metrics.SetKillSwitch(true)

		writeJSON(w, http.StatusOK, struct {
			Enabled bool `json:"enabled"`
		}{Enabled: true})
	}
}

func killSwitchDisableHandler(killSwitchUC usecase.KillSwitchUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req killSwitchRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Actor == "" {
			req.Actor = "operator"
		}

		if err := killSwitchUC.Disable(r.Context(), req.Actor, req.Reason); err != nil {
			http.Error(w, "Failed to disable agents", http.StatusInternalServerError)
			return
		}
		metrics.SetKillSwitch(false)

		writeJSON(w, http.StatusOK, struct {
			Enabled bool `json:"enabled"`
		}{Enabled: false})
	}
}

func incidentsListHandler(incidentUC usecase.IncidentUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := incidentUC.ListOpen(r.Context())
		if err != nil {
			http.Error(w, "Failed to list incidents", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data []*model.Incident `json:"data"`
		}{
			Data: items,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func incidentCreateHandler(incidentUC usecase.IncidentUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req incidentCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Severity == "" {
			req.Severity = string(model.IncidentSeverityInfo)
		}

		inc, err := incidentUC.RaiseManual(ctx, model.IncidentSeverity(req.Severity), req.Details)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, inc)
	}
}

func incidentResolveHandler(incidentUC usecase.IncidentUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "incidentID")

		inc, err := incidentUC.Resolve(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, inc)
	}
}

// spendHandler reports ledger totals for the current UTC day and month, the
// same windows the global caps are enforced over.
func spendHandler(ledgerUC usecase.CostLedgerUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now().UTC()

		day, err := ledgerUC.DaySpend(ctx, now)
		if err != nil {
			http.Error(w, "Failed to read daily spend", http.StatusInternalServerError)
			return
		}
		month, err := ledgerUC.MonthSpend(ctx, now)
		if err != nil {
			http.Error(w, "Failed to read monthly spend", http.StatusInternalServerError)
			return
		}

		response := struct {
			DailyUSD   float64   `json:"daily_usd"`
			MonthlyUSD float64   `json:"monthly_usd"`
			At         time.Time `json:"at"`
		}{
			DailyUSD:   day,
			MonthlyUSD: month,
			At:         now,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func modelsListHandler(profiles repository.ModelProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := profiles.ListActive(r.Context(), nil)
		if err != nil {
			http.Error(w, "Failed to list model profiles", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data []*model.ModelProfile `json:"data"`
		}{
			Data: items,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func reposListHandler(repos repository.RepoProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := repos.List(r.Context(), nil)
		if err != nil {
			http.Error(w, "Failed to list repo profiles", http.StatusInternalServerError)
			return
		}

		response := struct {
			Data []*model.RepoProfile `json:"data"`
		}{
			Data: items,
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// repoSaveHandler onboards or updates one repository. PUT carries the full
// profile; leaving enabled out keeps an existing repo's setting.
func repoSaveHandler(repos repository.RepoProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		repoName := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

		var req repoProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.DefaultBranch == "" {
			req.DefaultBranch = "main"
		}

		p := model.NewRepoProfile(repoName, req.DefaultBranch, req.AllowedPaths, req.AcceptanceCommands)
		if req.Enabled != nil {
			p.Enabled = *req.Enabled
		} else if existing, err := repos.Get(ctx, nil, repoName); err == nil {
			p.Enabled = existing.Enabled
		}
		if err := repos.Save(ctx, nil, p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// policyReloadHandler re-reads the policy file and swaps the compiled rules
// in. A snapshot that does not compile leaves the active rules untouched and
// the response says why.
func policyReloadHandler(policyUC usecase.PolicyUseCase, path string, log *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := config.DefaultPolicySnapshot()
		if path != "" {
			loaded, err := config.LoadPolicySnapshot(path)
			if err != nil {
				metrics.IncPolicyReload("load_failed")
				http.Error(w, "Failed to load policy file", http.StatusUnprocessableEntity)
				return
			}
			snap = loaded
		}

		if err := policyUC.Reload(snap); err != nil {
			metrics.IncPolicyReload("rejected")
			http.Error(w, "Policy rejected: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		metrics.IncPolicyReload("ok")
		log.Info().Str("path", path).Msg("policy rules reloaded")

		response := struct {
			BlockedCommands int `json:"blocked_commands"`
			SecretPatterns  int `json:"secret_patterns"`
			SensitivePaths  int `json:"sensitive_paths"`
		}{
			BlockedCommands: len(snap.BlockedCommands),
			SecretPatterns:  len(snap.SecretPatterns),
			SensitivePaths:  len(snap.SensitivePaths),
		}
		writeJSON(w, http.StatusOK, response)
	}
}

// modelSaveHandler upserts the binding for one profile name. PUT carries the
// full representation; prices are micro-dollars per token.
func modelSaveHandler(profiles repository.ModelProfileRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		profile := chi.URLParam(r, "profile")
		switch profile {
		case model.ProfileTriage, model.ProfileBuild, model.ProfileReview:
		default:
			http.Error(w, "Unknown profile", http.StatusBadRequest)
			return
		}

		var req modelProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.ModelName == "" || req.InputTokenPriceMicros < 0 || req.OutputTokenPriceMicros < 0 {
			http.Error(w, "model_name and non-negative prices are required", http.StatusBadRequest)
			return
		}

		p := model.NewModelProfile(profile, req.ModelName, req.InputTokenPriceMicros, req.OutputTokenPriceMicros, req.Active)
		if existing, err := profiles.GetByProfile(ctx, nil, profile); err == nil {
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
		}
		if err := profiles.Save(ctx, nil, p); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
