//go:build !integration

package postgres

import (
	"context"
	"time"

	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
	red "agent-orchestrator/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerCostLedgerRepo mocks the database repository that the cost ledger
// decorator wraps.
type mockInnerCostLedgerRepo struct {
	AppendFunc     func(ctx context.Context, tx repository.Tx, entry *model.CostLedgerEntry) error
	ListByJobFunc  func(ctx context.Context, tx repository.Tx, jobID string) ([]*model.CostLedgerEntry, error)
	SumByJobFunc   func(ctx context.Context, tx repository.Tx, jobID string) (float64, error)
	SumBetweenFunc func(ctx context.Context, tx repository.Tx, from, to time.Time) (float64, error)
}

func (m *mockInnerCostLedgerRepo) Append(ctx context.Context, tx repository.Tx, entry *model.CostLedgerEntry) error {
	return m.AppendFunc(ctx, tx, entry)
}
func (m *mockInnerCostLedgerRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.CostLedgerEntry, error) {
	return m.ListByJobFunc(ctx, tx, jobID)
}
func (m *mockInnerCostLedgerRepo) SumByJob(ctx context.Context, tx repository.Tx, jobID string) (float64, error) {
	return m.SumByJobFunc(ctx, tx, jobID)
}
func (m *mockInnerCostLedgerRepo) SumBetween(ctx context.Context, tx repository.Tx, from, to time.Time) (float64, error) {
	return m.SumBetweenFunc(ctx, tx, from, to)
}

// mockInnerModelProfileRepo mocks the database repository that the model
// profile decorator wraps.
type mockInnerModelProfileRepo struct {
	GetByProfileFunc func(ctx context.Context, tx repository.Tx, profile string) (*model.ModelProfile, error)
	SaveFunc         func(ctx context.Context, tx repository.Tx, p *model.ModelProfile) error
	ListActiveFunc   func(ctx context.Context, tx repository.Tx) ([]*model.ModelProfile, error)
}

func (m *mockInnerModelProfileRepo) GetByProfile(ctx context.Context, tx repository.Tx, profile string) (*model.ModelProfile, error) {
	return m.GetByProfileFunc(ctx, tx, profile)
}
func (m *mockInnerModelProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.ModelProfile) error {
	return m.SaveFunc(ctx, tx, p)
}
func (m *mockInnerModelProfileRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelProfile, error) {
	return m.ListActiveFunc(ctx, tx)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) FlushDB(ctx context.Context) error { return nil }
func (m *mockRedisClient) Close() error                      { return m.CloseFunc() }
