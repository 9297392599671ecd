package redis

import (
	"context"
	"time"

	"agent-orchestrator/internal/usecase"
)

var _ usecase.IntakeRateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter. The first hit in a window sets the
// expiry; everything past `limit` within it is refused.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		err = r.client.Expire(ctx, key, window)
		if err != nil {
			return false, err
		}
	}

	if count > int64(limit) {
		return false, nil
	}

	return true, nil
}
