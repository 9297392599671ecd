package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/usecase"
)

// Server is the operator API. Everything under /api/v1 except the session
// endpoints requires either the static operator token or a minted session.
type Server struct {
	lifecycleUC   usecase.LifecycleUseCase
	approvalUC    usecase.ApprovalUseCase
	killSwitchUC  usecase.KillSwitchUseCase
	incidentUC    usecase.IncidentUseCase
	ledgerUC      usecase.CostLedgerUseCase
	intakeUC      usecase.IntakeUseCase
	policyUC      usecase.PolicyUseCase
	profiles      repository.ModelProfileRepository
	repos         repository.RepoProfileRepository
	artifacts     adapter.ArtifactStore
	operatorToken string
	policyPath    string
	auth          *AuthManager
	log           *zerolog.Logger
}

func NewServer(
	lifecycleUC usecase.LifecycleUseCase,
	approvalUC usecase.ApprovalUseCase,
	killSwitchUC usecase.KillSwitchUseCase,
	incidentUC usecase.IncidentUseCase,
	ledgerUC usecase.CostLedgerUseCase,
	intakeUC usecase.IntakeUseCase,
	policyUC usecase.PolicyUseCase,
	profiles repository.ModelProfileRepository,
	repos repository.RepoProfileRepository,
	artifacts adapter.ArtifactStore,
	operatorToken string,
	policyPath string,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		lifecycleUC:   lifecycleUC,
		approvalUC:    approvalUC,
		killSwitchUC:  killSwitchUC,
		incidentUC:    incidentUC,
		ledgerUC:      ledgerUC,
		intakeUC:      intakeUC,
		policyUC:      policyUC,
		profiles:      profiles,
		repos:         repos,
		artifacts:     artifacts,
		operatorToken: operatorToken,
		policyPath:    policyPath,
		auth:          auth,
		log:           &l,
	}
}

// RegisterRoutes mounts the operator API. Paths are absolute (/api/v1/...),
// so register on a router mounted at root.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.loginHandler())
		r.Post("/auth/logout", s.logoutHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/jobs", jobsListHandler(s.lifecycleUC))
			r.Post("/jobs", jobCreateHandler(s.intakeUC))
			r.Post("/jobs/text", textIntakeHandler(s.intakeUC))
			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Get("/", jobGetHandler(s.lifecycleUC))
				r.Post("/approve", approveHandler(s.approvalUC))
				r.Post("/reject", rejectHandler(s.approvalUC, s.lifecycleUC))
				r.Get("/approvals", approvalsListHandler(s.approvalUC))
				r.Get("/ledger", jobLedgerHandler(s.ledgerUC))
				r.Get("/artifacts", artifactsListHandler(s.artifacts))
				r.Get("/artifacts/{name}", artifactReadHandler(s.artifacts))
			})

			r.Get("/killswitch", killSwitchGetHandler(s.killSwitchUC))
			r.Post("/killswitch/enable", killSwitchEnableHandler(s.killSwitchUC))
			r.Post("/killswitch/disable", killSwitchDisableHandler(s.killSwitchUC))

			r.Get("/incidents", incidentsListHandler(s.incidentUC))
			r.Post("/incidents", incidentCreateHandler(s.incidentUC))
			r.Post("/incidents/{incidentID}/resolve", incidentResolveHandler(s.incidentUC))

			r.Get("/spend", spendHandler(s.ledgerUC))

			r.Get("/models", modelsListHandler(s.profiles))
			r.Put("/models/{profile}", modelSaveHandler(s.profiles))

			r.Get("/repos", reposListHandler(s.repos))
			r.Put("/repos/{owner}/{name}", repoSaveHandler(s.repos))

			r.Post("/policy/reload", policyReloadHandler(s.policyUC, s.policyPath, s.log))
		})
	})
}

// authMiddleware admits the static operator token (Authorization: Bearer) or
// a session minted by the login endpoint (Bearer JWT or cookie). Every
// failure is a plain 401; the response does not say which check failed.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hdr := r.Header.Get("Authorization"); hdr != "" && s.operatorToken != "" {
			parts := strings.SplitN(hdr, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tok := strings.TrimSpace(parts[1])
				if subtle.ConstantTimeCompare([]byte(tok), []byte(s.operatorToken)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
		}

		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// loginHandler exchanges the static operator token for a session cookie, so
// dashboards do not have to hold the long-lived token past login.
func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if s.operatorToken == "" || s.auth == nil {
			s.log.Error().Msg("operator login attempted without token or session secret configured")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(req.Token), []byte(s.operatorToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.auth.Mint(w); err != nil {
			s.log.Error().Err(err).Msg("failed to mint operator session")
			http.Error(w, "Failed to create session", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) logoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil {
			s.auth.Clear(w)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
