package redis

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"

	"agent-orchestrator/internal/usecase"
)

// switchKey holds the global agents_enabled flag. No TTL: an operator
// disable must survive restarts until explicitly lifted.
const switchKey = "agents_enabled"

var _ usecase.SwitchStore = (*KillSwitchStore)(nil)

// KillSwitchStore persists the kill switch flag in Redis. A missing key
// counts as enabled; a read error is reported as-is so the caller can fail
// closed.
type KillSwitchStore struct {
	cli RedisClient
}

func NewKillSwitchStore(cli RedisClient) *KillSwitchStore {
	return &KillSwitchStore{cli: cli}
}

func (s *KillSwitchStore) Enabled(ctx context.Context) (bool, error) {
	val, err := s.cli.Get(ctx, switchKey)
	if err != nil {
		if err == redis.Nil {
			return true, nil
		}
		return false, err
	}
	return val != "false", nil
}

func (s *KillSwitchStore) SetEnabled(ctx context.Context, enabled bool) error {
	return s.cli.Set(ctx, switchKey, strconv.FormatBool(enabled), 0)
}
