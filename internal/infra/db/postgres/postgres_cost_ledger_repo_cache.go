package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
	"agent-orchestrator/internal/infra/metrics"
	red "agent-orchestrator/internal/infra/redis"
)

var _ repository.CostLedgerRepository = (*costLedgerRepoCacheDecorator)(nil)

// costLedgerRepoCacheDecorator caches window sums. The dispatcher re-checks
// the daily and monthly caps on every poll, which would otherwise aggregate
// the whole ledger every couple of seconds.
//
// Keys are (from,to) pairs, so invalidation on Append can target exactly the
// windows that contain the new row.
type costLedgerRepoCacheDecorator struct {
	inner repository.CostLedgerRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewCostLedgerRepoCacheDecorator(inner repository.CostLedgerRepository, cache red.RedisClient) repository.CostLedgerRepository {
	return &costLedgerRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   30 * time.Second,
	}
}

func sumKey(from, to time.Time) string {
	return fmt.Sprintf("spend_sum:%d:%d", from.Unix(), to.Unix())
}

func jobSumKey(jobID string) string {
	return fmt.Sprintf("spend_job:%s", jobID)
}

func (d *costLedgerRepoCacheDecorator) Append(ctx context.Context, tx repository.Tx, entry *model.CostLedgerEntry) error {
	if err := d.inner.Append(ctx, tx, entry); err != nil {
		return err
	}
	// Drop the sums the new row lands in: the job's own sum plus the UTC
	// day and month windows around its timestamp.
	at := entry.CreatedAt.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	month := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	_ = d.cache.Del(ctx,
		jobSumKey(entry.JobID),
		sumKey(day, day.AddDate(0, 0, 1)),
		sumKey(month, month.AddDate(0, 1, 0)),
	)
	return nil
}

func (d *costLedgerRepoCacheDecorator) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.CostLedgerEntry, error) {
	return d.inner.ListByJob(ctx, tx, jobID)
}

func (d *costLedgerRepoCacheDecorator) SumByJob(ctx context.Context, tx repository.Tx, jobID string) (float64, error) {
	// Inside a transaction the sum must see the tx's own writes.
	if tx != nil {
		return d.inner.SumByJob(ctx, tx, jobID)
	}
	key := jobSumKey(jobID)
	if val, err := d.cache.Get(ctx, key); err == nil {
		if sum, perr := strconv.ParseFloat(val, 64); perr == nil {
			metrics.IncCacheRequest("spend_job", "hit")
			return sum, nil
		}
	}
	metrics.IncCacheRequest("spend_job", "miss")
	sum, err := d.inner.SumByJob(ctx, tx, jobID)
	if err != nil {
		return 0, err
	}
	_ = d.cache.Set(ctx, key, strconv.FormatFloat(sum, 'f', -1, 64), d.ttl)
	return sum, nil
}

func (d *costLedgerRepoCacheDecorator) SumBetween(ctx context.Context, tx repository.Tx, from, to time.Time) (float64, error) {
	if tx != nil {
		return d.inner.SumBetween(ctx, tx, from, to)
	}
	key := sumKey(from, to)
	if val, err := d.cache.Get(ctx, key); err == nil {
		if sum, perr := strconv.ParseFloat(val, 64); perr == nil {
			metrics.IncCacheRequest("spend_window", "hit")
			return sum, nil
		}
	}
	metrics.IncCacheRequest("spend_window", "miss")
	sum, err := d.inner.SumBetween(ctx, tx, from, to)
	if err != nil {
		return 0, err
	}
	_ = d.cache.Set(ctx, key, strconv.FormatFloat(sum, 'f', -1, 64), d.ttl)
	return sum, nil
}
