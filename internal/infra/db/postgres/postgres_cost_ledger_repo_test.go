//go:build integration

package postgres

import (
	"context"
	"math"
	"testing"
	"time"

	"agent-orchestrator/internal/domain/model"
)

func TestCostLedgerRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	jobs := NewJobRepo(testPool)
	repo := NewCostLedgerRepo(testPool)

	setupJobs := func(t *testing.T) (*model.Job, *model.Job) {
		cleanup(t)
		a := model.NewJob("acme/api", 1, "job a", "main", model.RiskClassCode, model.ProfileBuild, "operator", testCaps())
		b := model.NewJob("acme/api", 2, "job b", "main", model.RiskClassCode, model.ProfileBuild, "operator", testCaps())
		if err := jobs.Save(ctx, nil, a); err != nil {
			t.Fatalf("failed to save job a: %v", err)
		}
		if err := jobs.Save(ctx, nil, b); err != nil {
			t.Fatalf("failed to save job b: %v", err)
		}
		return a, b
	}

	t.Run("should append entries and sum spend per job", func(t *testing.T) {
		a, b := setupJobs(t)

		entries := []*model.CostLedgerEntry{
			model.NewCostLedgerEntry(a.ID, "gpt-4o-mini", 1000, 200, 0.0012),
			model.NewCostLedgerEntry(a.ID, "gpt-4.1", 4000, 800, 0.0048),
			model.NewCostLedgerEntry(b.ID, "gpt-4.1", 2000, 400, 0.0024),
		}
		for _, e := range entries {
			if err := repo.Append(ctx, nil, e); err != nil {
				t.Fatalf("failed to append ledger entry: %v", err)
			}
		}

		sum, err := repo.SumByJob(ctx, nil, a.ID)
		if err != nil {
			t.Fatalf("SumByJob failed: %v", err)
		}
		if math.Abs(sum-0.006) > 1e-9 {
			t.Errorf("expected job a sum 0.006, got %f", sum)
		}

		list, err := repo.ListByJob(ctx, nil, a.ID)
		if err != nil {
			t.Fatalf("ListByJob failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 entries for job a, got %d", len(list))
		}
		if list[0].Model != "gpt-4o-mini" || list[0].PromptTokens != 1000 {
			t.Errorf("unexpected first entry: %+v", list[0])
		}
	})

	t.Run("should sum zero for a job with no spend", func(t *testing.T) {
		a, _ := setupJobs(t)

		sum, err := repo.SumByJob(ctx, nil, a.ID)
		if err != nil {
			t.Fatalf("SumByJob failed: %v", err)
		}
		if sum != 0 {
			t.Errorf("expected 0 for an empty ledger, got %f", sum)
		}
	})

	t.Run("should sum spend across jobs within a window", func(t *testing.T) {
		a, b := setupJobs(t)

		now := time.Now().UTC()
		recent := model.NewCostLedgerEntry(a.ID, "gpt-4.1", 1000, 100, 1.5)
		recent.CreatedAt = now
		old := model.NewCostLedgerEntry(b.ID, "gpt-4.1", 1000, 100, 2.5)
		old.CreatedAt = now.AddDate(0, 0, -2)
		for _, e := range []*model.CostLedgerEntry{recent, old} {
			if err := repo.Append(ctx, nil, e); err != nil {
				t.Fatalf("failed to append ledger entry: %v", err)
			}
		}

		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		sum, err := repo.SumBetween(ctx, nil, day, day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("SumBetween failed: %v", err)
		}
		if math.Abs(sum-1.5) > 1e-9 {
			t.Errorf("expected today's sum 1.5, got %f", sum)
		}

		sum, err = repo.SumBetween(ctx, nil, day.AddDate(0, 0, -3), day.AddDate(0, 0, 1))
		if err != nil {
			t.Fatalf("SumBetween over the wide window failed: %v", err)
		}
		if math.Abs(sum-4.0) > 1e-9 {
			t.Errorf("expected wide-window sum 4.0, got %f", sum)
		}
	})
}
