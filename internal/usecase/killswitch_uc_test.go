//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"agent-orchestrator/internal/usecase"
)

func TestKillSwitchUseCase(t *testing.T) {
	ctx := context.Background()
	testLogger := newTestLogger()

	t.Run("should report enabled when the flag is set", func(t *testing.T) {
		// --- Arrange ---
		store := NewMockSwitchStore()
		uc := usecase.NewKillSwitchUseCase(store, testLogger)

		// --- Act ---
		on, err := uc.Enabled(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !on {
			t.Error("expected agents to be enabled")
		}
	})

	t.Run("should disable and re-enable agents", func(t *testing.T) {
		// --- Arrange ---
		store := NewMockSwitchStore()
		uc := usecase.NewKillSwitchUseCase(store, testLogger)

		// --- Act ---
		if err := uc.Disable(ctx, "ops", "runaway spend"); err != nil {
			t.Fatalf("disable failed: %v", err)
		}
		off, _ := uc.Enabled(ctx)
		if err := uc.Enable(ctx, "ops"); err != nil {
			t.Fatalf("enable failed: %v", err)
		}
		on, _ := uc.Enabled(ctx)

		// --- Assert ---
		if off {
			t.Error("expected agents disabled after Disable")
		}
		if !on {
			t.Error("expected agents enabled after Enable")
		}
	})

	t.Run("should fail closed when the store is unreachable", func(t *testing.T) {
		// --- Arrange ---
		store := NewMockSwitchStore()
		store.Err = errors.New("redis: connection refused")
		uc := usecase.NewKillSwitchUseCase(store, testLogger)

		// --- Act ---
		on, err := uc.Enabled(ctx)

		// --- Assert ---
		if err == nil {
			t.Fatal("expected the store error to surface")
		}
		if on {
			t.Error("expected agents reported as disabled when the flag cannot be read")
		}
	})
}
