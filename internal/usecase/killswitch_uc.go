// File: internal/usecase/killswitch_uc.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"
)

// SwitchStore persists the global agents_enabled flag. Implementations must
// treat a missing flag as enabled and surface read failures as errors rather
// than guessing.
type SwitchStore interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
}

// KillSwitchUseCase is the single authority on whether agents may run. Every
// dispatch decision and every iteration boundary consults it.
type KillSwitchUseCase interface {
	// Enabled fails closed: a store read error reports agents as disabled
	// alongside the error.
	Enabled(ctx context.Context) (bool, error)
	Disable(ctx context.Context, actor, reason string) error
	Enable(ctx context.Context, actor string) error
}

var _ KillSwitchUseCase = (*killSwitchUC)(nil)

type killSwitchUC struct {
	store SwitchStore
	log   *zerolog.Logger
}

func NewKillSwitchUseCase(store SwitchStore, logger *zerolog.Logger) KillSwitchUseCase {
	l := logger.With().Str("component", "killswitch_uc").Logger()
	return &killSwitchUC{store: store, log: &l}
}

func (k *killSwitchUC) Enabled(ctx context.Context) (bool, error) {
	on, err := k.store.Enabled(ctx)
	if err != nil {
		k.log.Warn().Err(err).Msg("kill switch read failed, treating agents as disabled")
		return false, err
	}
	return on, nil
}

func (k *killSwitchUC) Disable(ctx context.Context, actor, reason string) error {
	if err := k.store.SetEnabled(ctx, false); err != nil {
		return err
	}
	k.log.Warn().Str("actor", actor).Str("reason", reason).Msg("kill switch engaged, agents disabled")
	return nil
}

func (k *killSwitchUC) Enable(ctx context.Context, actor string) error {
	if err := k.store.SetEnabled(ctx, true); err != nil {
		return err
	}
	k.log.Info().Str("actor", actor).Msg("kill switch released, agents enabled")
	return nil
}
