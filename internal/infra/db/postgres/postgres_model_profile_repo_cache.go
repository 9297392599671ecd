package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/infra/metrics"
	red "agent-orchestrator/internal/infra/redis"
)

var _ repository.ModelProfileRepository = (*modelProfileRepoCacheDecorator)(nil)

// modelProfileRepoCacheDecorator caches profile bindings in Redis. The runner
// resolves the binding once per job, but dispatchers running many jobs hit
// the same three rows constantly.
type modelProfileRepoCacheDecorator struct {
	inner repository.ModelProfileRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewModelProfileRepoCacheDecorator(inner repository.ModelProfileRepository, cache red.RedisClient) repository.ModelProfileRepository {
	return &modelProfileRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func (d *modelProfileRepoCacheDecorator) GetByProfile(ctx context.Context, tx repository.Tx, profile string) (*model.ModelProfile, error) {
	key := fmt.Sprintf("model_profile:%s", profile)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("model_profile", "hit")
		var p model.ModelProfile
		if json.Unmarshal([]byte(val), &p) == nil {
			return &p, nil
		}
	}

	metrics.IncCacheRequest("model_profile", "miss")
	p, err := d.inner.GetByProfile(ctx, tx, profile)
	if err != nil {
		return nil, err
	}
	if p != nil {
		bytes, _ := json.Marshal(p)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return p, nil
}

// Write operations must invalidate the cache
func (d *modelProfileRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.ModelProfile) error {
	_ = d.cache.Del(ctx, fmt.Sprintf("model_profile:%s", p.Profile), "model_profile:all_active")
	return d.inner.Save(ctx, tx, p)
}

func (d *modelProfileRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelProfile, error) {
	key := "model_profile:all_active"
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("model_profile_list", "hit")
		var profiles []*model.ModelProfile
		if json.Unmarshal([]byte(val), &profiles) == nil {
			return profiles, nil
		}
	}
	if err != nil && err != redis.Nil {
		// Redis being down should degrade to DB reads, not fail the call.
		return d.inner.ListActive(ctx, tx)
	}

	metrics.IncCacheRequest("model_profile_list", "miss")
	profiles, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(profiles) > 0 {
		bytes, _ := json.Marshal(profiles)
		_ = d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return profiles, nil
}
