package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"agent-orchestrator/internal/domain"
	"agent-orchestrator/internal/domain/model"
	"agent-orchestrator/internal/domain/ports/repository"
)

var _ repository.ModelProfileRepository = (*modelProfileRepo)(nil)

type modelProfileRepo struct {
	pool *pgxpool.Pool
}

func NewModelProfileRepo(pool *pgxpool.Pool) *modelProfileRepo {
	return &modelProfileRepo{pool: pool}
}

func (r *modelProfileRepo) GetByProfile(ctx context.Context, tx repository.Tx, profile string) (*model.ModelProfile, error) {
	const q = `
SELECT id, profile, model_name, input_token_price_micros, output_token_price_micros, active, created_at, updated_at
  FROM model_profiles
 WHERE profile=$1 AND active=TRUE
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, profile)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	var p model.ModelProfile
	if err := row.Scan(&p.ID, &p.Profile, &p.ModelName, &p.InputTokenPriceMicros, &p.OutputTokenPriceMicros, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &p, nil
}

func (r *modelProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.ModelProfile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now()
	const q = `
INSERT INTO model_profiles (id, profile, model_name, input_token_price_micros, output_token_price_micros, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (profile) DO UPDATE SET
  model_name = EXCLUDED.model_name,
  input_token_price_micros = EXCLUDED.input_token_price_micros,
  output_token_price_micros = EXCLUDED.output_token_price_micros,
  active = EXCLUDED.active,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.Profile, p.ModelName, p.InputTokenPriceMicros, p.OutputTokenPriceMicros, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *modelProfileRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelProfile, error) {
	const q = `
SELECT id, profile, model_name, input_token_price_micros, output_token_price_micros, active, created_at, updated_at
  FROM model_profiles
 WHERE active=TRUE
 ORDER BY profile ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.ModelProfile
	for rows.Next() {
		var p model.ModelProfile
		if err := rows.Scan(&p.ID, &p.Profile, &p.ModelName, &p.InputTokenPriceMicros, &p.OutputTokenPriceMicros, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
