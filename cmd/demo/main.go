package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain/model"
	agentAdapters "agent-orchestrator/internal/infra/adapters/agent"
	gh "agent-orchestrator/internal/infra/adapters/github"
	"agent-orchestrator/internal/infra/adapters/notify"
	"agent-orchestrator/internal/infra/artifacts"
	pg "agent-orchestrator/internal/infra/db/postgres"
	"agent-orchestrator/internal/infra/logging"
	"agent-orchestrator/internal/infra/metrics"
	red "agent-orchestrator/internal/infra/redis"
	"agent-orchestrator/internal/infra/worker"
	"agent-orchestrator/internal/usecase"
)

// Fast-mode walkthrough: file a job from plain text, let an in-process
// dispatcher run it through the canned local agent, then print the event
// timeline and the spend it accrued. Needs Postgres and Redis, nothing else.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.Env = config.EnvFast // the demo never talks to real providers
	logger := logging.New(cfg.Log, true)
	metrics.MustRegister()

	// ---- Infrastructure ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()

	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Root)
	if err != nil {
		log.Fatalf("artifact store: %v", err)
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

	// ---- Seed the demo repo and the stock model profiles ----
	demoRepo := "demo/sandbox"
	if err := repoProfiles.Save(ctx, nil, model.NewRepoProfile(
		demoRepo, "main",
		[]string{"internal/**", "README.md"},
		[]string{"go test ./..."},
	)); err != nil {
		log.Fatalf("seed repo profile: %v", err)
	}
	for _, p := range model.DefaultModelProfiles() {
		if err := modelProfiles.Save(ctx, nil, p); err != nil {
			log.Fatalf("seed model profile %q: %v", p.Profile, err)
		}
	}
	fmt.Printf("seeded repo %q and %d model profiles\n", demoRepo, len(model.DefaultModelProfiles()))

	// ---- Use cases, wired exactly like the service ----
	notifier := notify.NewNoopNotifier(logger)
	ghClient := gh.NewNoopClient()
	switchStore := red.NewKillSwitchStore(redisClient)
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	incidentUC := usecase.NewIncidentUseCase(incidentRepo, jobRepo, notifier, cfg.Incident.Window, cfg.Incident.Threshold, logger)
	lifecycleUC := usecase.NewLifecycleUseCase(jobRepo, eventRepo, txm, incidentUC, notifier, cfg.Queue.RetryMax, cfg.Queue.RetryBackoff, logger)
	approvalUC := usecase.NewApprovalUseCase(approvalRepo, jobRepo, eventRepo, txm, notifier, logger)
	ledgerUC := usecase.NewCostLedgerUseCase(jobRepo, ledgerRepo, txm, logger)
	killSwitchUC := usecase.NewKillSwitchUseCase(switchStore, logger)
	capEnforcer := usecase.NewCapEnforcer(ledgerUC, cfg.Caps, logger)
	policyUC, err := usecase.NewPolicyUseCase(config.DefaultPolicySnapshot(), repoProfiles, auditRepo, capEnforcer, logger)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	intakeUC := usecase.NewIntakeUseCase(repoProfiles, jobRepo, lifecycleUC, policyUC, ghClient, rateLimiter,
		cfg.Caps.Job, cfg.Intake, cfg.GitHub.IntakeLabel, logger)

	// Agents must be on or nothing will run.
	if err := killSwitchUC.Enable(ctx, "demo"); err != nil {
		log.Fatalf("enable agents: %v", err)
	}

	agent := agentAdapters.NewMeteredAgent(
		agentAdapters.NewLimitedAgent(agentAdapters.NewLocalAgent(), 2),
		modelProfiles,
	)
	runner := usecase.NewJobRunner(lifecycleUC, approvalUC, policyUC, killSwitchUC,
		agent, ghClient, artifactStore, ledgerUC, modelProfiles, 200*time.Millisecond, logger)

	// ---- In-process queue ----
	cfg.Queue.PollInterval = 200 * time.Millisecond
	wpool := worker.NewPool(2)
	wpool.Start(ctx)
	defer wpool.Stop()
	dispatcher := worker.NewDispatcher(lifecycleUC, runner, capEnforcer, incidentUC, killSwitchUC,
		jobRepo, locker, cfg.Queue, logger)
	go dispatcher.Start(ctx, wpool)

	// ---- Intake ----
	job, err := intakeUC.IntakeFromText(ctx, usecase.TextIntakeParams{
		Repo:         demoRepo,
		Title:        "Demo: tighten retry backoff docs",
		Body:         "Clarify how retry backoff interacts with the job timeout.",
		RiskClass:    model.RiskClassCode,
		ModelProfile: model.ProfileBuild,
		CreatedBy:    "demo",
	})
	if err != nil {
		log.Fatalf("intake: %v", err)
	}
	fmt.Printf("queued job %s (issue #%d)\n", job.ID, job.IssueNumber)

	// ---- Wait for a terminal state ----
	deadline := time.After(2 * time.Minute)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-deadline:
			log.Fatalf("job %s did not finish in time", job.ID)
		case <-ticker.C:
			job, err = lifecycleUC.Get(ctx, job.ID)
			if err != nil {
				log.Fatalf("get job: %v", err)
			}
			done = job.Status.Terminal()
		}
	}

	// ---- Timeline ----
	job, events, err := lifecycleUC.GetWithEvents(ctx, job.ID)
	if err != nil {
		log.Fatalf("timeline: %v", err)
	}
	fmt.Printf("\njob %s finished: %s", job.ID, job.Status)
	if job.FailureReason != "" {
		fmt.Printf(" (%s)", job.FailureReason)
	}
	fmt.Printf("\n  iterations=%d attempts=%d cost=$%.6f pr=%s\n\n", job.Iterations, job.Attempts, job.CostUSD, job.PRURL)
	for _, ev := range events {
		fmt.Printf("  %s  %-9s %-18s %s\n", ev.CreatedAt.Format("15:04:05.000"), ev.Stage, ev.Type, ev.Message)
	}

	names, err := artifactStore.List(ctx, job.ID)
	if err == nil && len(names) > 0 {
		fmt.Printf("\nartifacts: %v\n", names)
	}
}
