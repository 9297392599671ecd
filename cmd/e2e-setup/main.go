package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/infra/db/postgres"
	"agent-orchestrator/internal/infra/redis"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing.
func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	// --- Connect to Redis ---
	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean Redis: kill switch, poll lock, rate limits, spend caches.
	log.Println("[1/4] Wiping Redis...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	// 2. Clean the database completely.
	log.Println("[2/4] Wiping all existing database data...")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			jobs, job_events, approvals, policy_audit, cost_ledger,
			incidents, repo_profiles, model_profiles
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Seed the stock model profiles and a sandbox repo.
	log.Println("[3/4] Seeding model profiles and the sandbox repo...")
	seedProfiles(ctx, pool)

	// 4. Leave the kill switch on so jobs actually run.
	log.Println("[4/4] Enabling agents...")
	if err := redis.NewKillSwitchStore(redisClient).SetEnabled(ctx, true); err != nil {
		log.Fatalf("failed to enable agents: %v", err)
	}

	log.Println("--- ✅ E2E Environment Setup Complete ---")
}

// seedProfiles writes the standard data the orchestrator needs to take work.
func seedProfiles(ctx context.Context, pool *pgxpool.Pool) {
	modelProfiles := postgres.NewModelProfileRepo(pool)
	repoProfiles := postgres.NewRepoProfileRepo(pool)

	for _, p := range model.DefaultModelProfiles() {
		if err := modelProfiles.Save(ctx, nil, p); err != nil {
			log.Printf("failed to save model profile %s: %v", p.Profile, err)
		}
	}

	sandbox := model.NewRepoProfile(
		"demo/sandbox", "main",
		[]string{"internal/**", "docs/**", "README.md"},
		[]string{"go test ./..."},
	)
	if err := repoProfiles.Save(ctx, nil, sandbox); err != nil {
		log.Printf("failed to save sandbox repo profile: %v", err)
	}
}
