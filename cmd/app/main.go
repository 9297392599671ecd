// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain/ports/adapter"
	"agent-orchestrator/internal/domain/ports/repository"
	agentAdapters "agent-orchestrator/internal/infra/adapters/agent"
	gh "agent-orchestrator/internal/infra/adapters/github"
	"agent-orchestrator/internal/infra/adapters/notify"
	"agent-orchestrator/internal/infra/api"
	"agent-orchestrator/internal/infra/artifacts"
	pg "agent-orchestrator/internal/infra/db/postgres"
	"agent-orchestrator/internal/infra/logging"
	"agent-orchestrator/internal/infra/metrics"
	red "agent-orchestrator/internal/infra/redis"
	"agent-orchestrator/internal/infra/sched"
	"agent-orchestrator/internal/infra/security"
	"agent-orchestrator/internal/infra/web"
	"agent-orchestrator/internal/infra/worker"
	"agent-orchestrator/internal/usecase"
)

// Build metadata, overridden with -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Config & logging ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("env", cfg.Env).Str("version", version).Msg("starting orchestrator")

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	go samplePoolStats(ctx, pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	switchStore := red.NewKillSwitchStore(redisClient)

	// ---- Artifacts ----
	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Root)
	if err != nil {
		logger.Fatal().Err(err).Msg("artifact store init failed")
	}

	// ---- Operator notifications ----
	var notifier adapter.OperatorNotifier
	if cfg.Telegram.Enabled {
		notifier, err = notify.NewTelegramNotifier(&cfg.Telegram, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier init failed")
		}
	} else {
		notifier = notify.NewNoopNotifier(logger)
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	eventRepo := pg.NewJobEventRepo(pool)
	approvalRepo := pg.NewApprovalRepo(pool)
	auditRepo := pg.NewPolicyAuditRepo(pool)
	incidentRepo := pg.NewIncidentRepo(pool)
	ledgerRepo := pg.NewCostLedgerRepoCacheDecorator(pg.NewCostLedgerRepo(pool), redisClient)
	repoProfiles := pg.NewRepoProfileRepo(pool)
	modelProfiles := pg.NewModelProfileRepoCacheDecorator(pg.NewModelProfileRepo(pool), redisClient)
	txm := pg.NewTxManager(pool)

	// ---- Policy rules ----
	snap, err := config.LoadPolicySnapshot(cfg.Policy.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("policy load failed")
	}

	// ---- Use cases ----
	incidentUC := usecase.NewIncidentUseCase(incidentRepo, jobRepo, notifier, cfg.Incident.Window, cfg.Incident.Threshold, logger)
	lifecycleUC := usecase.NewLifecycleUseCase(jobRepo, eventRepo, txm, incidentUC, notifier, cfg.Queue.RetryMax, cfg.Queue.RetryBackoff, logger)
	approvalUC := usecase.NewApprovalUseCase(approvalRepo, jobRepo, eventRepo, txm, notifier, logger)
	ledgerUC := usecase.NewCostLedgerUseCase(jobRepo, ledgerRepo, txm, logger)
	killSwitchUC := usecase.NewKillSwitchUseCase(switchStore, logger)
	capEnforcer := usecase.NewCapEnforcer(ledgerUC, cfg.Caps, logger)
	policyUC, err := usecase.NewPolicyUseCase(snap, repoProfiles, auditRepo, capEnforcer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("policy compile failed")
	}

	// ---- GitHub ----
	var ghClient adapter.GitHubClient
	if cfg.ReleaseMode() {
		ghClient, err = gh.NewAppClient(&cfg.GitHub)
		if err != nil {
			logger.Fatal().Err(err).Msg("github app client init failed")
		}
	} else {
		ghClient = gh.NewNoopClient()
	}

	// ---- Coding agent ----
	agent, err := buildAgent(ctx, cfg, modelProfiles)
	if err != nil {
		logger.Fatal().Err(err).Msg("agent init failed")
	}

	// ---- Intake ----
	intakeUC := usecase.NewIntakeUseCase(repoProfiles, jobRepo, lifecycleUC, policyUC, ghClient, rateLimiter,
		cfg.Caps.Job, cfg.Intake, cfg.GitHub.IntakeLabel, logger)

	// ---- Runner, dispatcher, background workers ----
	runner := usecase.NewJobRunner(lifecycleUC, approvalUC, policyUC, killSwitchUC,
		agent, ghClient, artifactStore, ledgerUC, modelProfiles, cfg.Queue.PollInterval, logger)

	wpool := worker.NewPool(cfg.Queue.MaxParallel)
	wpool.Start(ctx)
	dispatcher := worker.NewDispatcher(lifecycleUC, runner, capEnforcer, incidentUC, killSwitchUC,
		jobRepo, locker, cfg.Queue, logger)
	go dispatcher.Start(ctx, wpool)

	approvalSweep := sched.NewApprovalWorker(time.Minute, cfg.Approval.Timeout, lifecycleUC, jobRepo, logger)
	go func() { _ = approvalSweep.Run(ctx) }()
	reaper := sched.NewReaperWorker(time.Minute, cfg.Queue.JobTimeout, cfg.Queue.StaleAfter, lifecycleUC, jobRepo, logger)
	go func() { _ = reaper.Run(ctx) }()
	spendSampler := sched.NewSpendWorker(30*time.Second, ledgerUC, logger)
	go func() { _ = spendSampler.Run(ctx) }()

	// ---- HTTP ----
	var verifier *security.WebhookVerifier
	if cfg.Server.WebhookSecret != "" {
		verifier, err = security.NewWebhookVerifier(cfg.Server.WebhookSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("webhook verifier init failed")
		}
	} else {
		logger.Warn().Msg("server.webhook_secret not set, webhook deliveries will be refused")
	}
	var auth *web.AuthManager
	if cfg.Server.JWTSecret != "" {
		auth = web.NewAuthManager(cfg.Server.JWTSecret, !cfg.Runtime.Dev, "", 12*time.Hour)
	}

	webSrv := web.NewServer(lifecycleUC, approvalUC, killSwitchUC, incidentUC, ledgerUC, intakeUC,
		policyUC, modelProfiles, repoProfiles, artifactStore, cfg.Server.OperatorToken, cfg.Policy.Path, auth, logger)
	router := chi.NewRouter()
	webSrv.RegisterRoutes(router)

	mux := http.NewServeMux()
	api.NewServer(intakeUC, verifier, logger).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/v1/", router)

	handler := api.Chain(mux,
		api.Recover(logger),
		api.TraceID(logger),
		api.RequestLog(logger),
		api.Timeout(cfg.Server.RequestTimeout),
	)
	server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: handler}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shctx, shcancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shcancel()
	if err := server.Shutdown(shctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	wpool.Stop()
	logger.Info().Msg("orchestrator stopped")
}

// buildAgent assembles the model-call chain: provider agents behind the
// multi-agent router, then a concurrency cap, then usage metering. Fast mode
// swaps the providers for the local canned agent.
func buildAgent(ctx context.Context, cfg *config.Config, profiles repository.ModelProfileRepository) (adapter.CodingAgent, error) {
	var base adapter.CodingAgent
	if cfg.ReleaseMode() {
		byProvider := map[string]adapter.CodingAgent{}
		if cfg.AI.OpenAIKey != "" {
			oa, err := agentAdapters.NewOpenAIAgent(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, "")
			if err != nil {
				return nil, err
			}
			byProvider["openai"] = oa
		}
		if cfg.AI.GeminiKey != "" {
			ga, err := agentAdapters.NewGeminiAgent(ctx, cfg.AI.GeminiKey, "", 0)
			if err != nil {
				return nil, err
			}
			byProvider["gemini"] = ga
		}
		if len(byProvider) == 0 {
			return nil, errors.New("release mode requires ai.openai_key or ai.gemini_key")
		}
		base = agentAdapters.NewMultiAgent(cfg.AI.Provider, byProvider)
	} else {
		base = agentAdapters.NewLocalAgent()
	}
	limited := agentAdapters.NewLimitedAgent(base, cfg.AI.ConcurrentLimit)
	return agentAdapters.NewMeteredAgent(limited, profiles), nil
}

// samplePoolStats feeds the db_pool_stats gauge.
func samplePoolStats(ctx context.Context, pool *pgxpool.Pool) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := pool.Stat()
			metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		}
	}
}
