package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"agent-orchestrator/internal/config"
	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	pg "agent-orchestrator/internal/infra/db/postgres"
)

// Seeds the model profile bindings and the repo allowlist. Model profiles are
// created only when absent; repo entries from repos.yaml are always upserted
// so the file stays the source of truth for the allowlist.
func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	modelProfiles := pg.NewModelProfileRepo(pool)
	repoProfiles := pg.NewRepoProfileRepo(pool)

	// ---- Model profiles ----
	existing, err := modelProfiles.ListActive(ctx, nil)
	if err != nil {
		log.Fatalf("list model profiles: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d model profiles already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s -> %s (in=%d out=%d micros/token)\n", p.Profile, p.ModelName, p.InputTokenPriceMicros, p.OutputTokenPriceMicros)
		}
	} else {
		for _, p := range model.DefaultModelProfiles() {
			if err := modelProfiles.Save(ctx, nil, p); err != nil {
				log.Fatalf("save model profile %q: %v", p.Profile, err)
			}
			fmt.Printf("seeded: %s -> %s\n", p.Profile, p.ModelName)
		}
	}

	// ---- Repo allowlist ----
	if cfg.Repos.Path == "" {
		fmt.Println("repos.path not set, skipping repo allowlist.")
		fmt.Println("✅ Seeding complete.")
		return
	}
	f, err := config.LoadReposFile(cfg.Repos.Path)
	if err != nil {
		log.Fatalf("load repos file: %v", err)
	}
	for _, seed := range f.Repos {
		profile, err := repoProfiles.Get(ctx, nil, seed.Repo)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				log.Fatalf("get repo profile %q: %v", seed.Repo, err)
			}
			profile = model.NewRepoProfile(seed.Repo, seed.DefaultBranch, seed.AllowedPaths, seed.AcceptanceCommands)
		} else {
			profile.DefaultBranch = seed.DefaultBranch
			profile.AllowedPaths = seed.AllowedPaths
			profile.AcceptanceCommands = seed.AcceptanceCommands
			profile.UpdatedAt = time.Now()
		}
		profile.Enabled = seed.Enabled == nil || *seed.Enabled
		if err := repoProfiles.Save(ctx, nil, profile); err != nil {
			log.Fatalf("save repo profile %q: %v", seed.Repo, err)
		}
		state := "enabled"
		if !profile.Enabled {
			state = "disabled"
		}
		fmt.Printf("upserted: %s (%s, branch=%s, paths=%d)\n", profile.Repo, state, profile.DefaultBranch, len(profile.AllowedPaths))
	}

	fmt.Println("✅ Seeding complete.")
}
