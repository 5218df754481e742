package postgres

import (
	"context"
	"errors"
	"time"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ModelPricingRepository = (*modelPricingRepo)(nil)

type modelPricingRepo struct {
	pool *pgxpool.Pool
}

func NewModelPricingRepo(pool *pgxpool.Pool) *modelPricingRepo {
	return &modelPricingRepo{pool: pool}
}

const pricingColumns = `id, model_name, input_token_price_micros, output_token_price_micros, active, created_at, updated_at`

func scanPricing(row pgx.Row) (*model.ModelPricing, error) {
	var p model.ModelPricing
	err := row.Scan(&p.ID, &p.ModelName, &p.InputTokenPriceMicros, &p.OutputTokenPriceMicros,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *modelPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, modelName string) (*model.ModelPricing, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	return scanPricing(ex.QueryRow(ctx,
		`SELECT `+pricingColumns+` FROM model_pricing WHERE model_name = $1 AND active;`, modelName))
}

func (r *modelPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT `+pricingColumns+` FROM model_pricing WHERE active ORDER BY model_name;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ModelPricing
	for rows.Next() {
		p, err := scanPricing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *modelPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
INSERT INTO model_pricing (`+pricingColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7);`,
		p.ID, p.ModelName, p.InputTokenPriceMicros, p.OutputTokenPriceMicros, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *modelPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	tag, err := ex.Exec(ctx, `
UPDATE model_pricing SET
  input_token_price_micros = $2,
  output_token_price_micros = $3,
  active = $4,
  updated_at = $5
WHERE id = $1;`,
		p.ID, p.InputTokenPriceMicros, p.OutputTokenPriceMicros, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
