package postgres

import (
	"context"
	"errors"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ProviderRepository = (*providerRepo)(nil)

type providerRepo struct {
	pool *pgxpool.Pool
}

func NewProviderRepo(pool *pgxpool.Pool) *providerRepo {
	return &providerRepo{pool: pool}
}

const providerColumns = `id, name, disabled, fallback_id, parent_id, sort_order, pooled, models`

func scanProvider(row pgx.Row) (*model.Provider, error) {
	var p model.Provider
	err := row.Scan(&p.ID, &p.Name, &p.Disabled, &p.FallbackID, &p.ParentID, &p.Order, &p.Pooled, &p.Models)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *providerRepo) Save(ctx context.Context, tx repository.Tx, p *model.Provider) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
INSERT INTO providers (id, name, disabled, fallback_id, parent_id, sort_order, pooled, models)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  disabled = EXCLUDED.disabled,
  fallback_id = EXCLUDED.fallback_id,
  parent_id = EXCLUDED.parent_id,
  sort_order = EXCLUDED.sort_order,
  pooled = EXCLUDED.pooled,
  models = EXCLUDED.models;`,
		p.ID, p.Name, p.Disabled, p.FallbackID, p.ParentID, p.Order, p.Pooled, p.Models)
	return err
}

func (r *providerRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Provider, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	return scanProvider(ex.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1;`, id))
}

func (r *providerRepo) ListEnabledByModel(ctx context.Context, tx repository.Tx, modelName string) ([]*model.Provider, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE NOT disabled AND $1 = ANY(models) ORDER BY sort_order;`,
		modelName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProviders(rows)
}

func (r *providerRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Provider, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `SELECT `+providerColumns+` FROM providers ORDER BY sort_order;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectProviders(rows)
}

func (r *providerRepo) SetDisabled(ctx context.Context, tx repository.Tx, id string, disabled bool) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `UPDATE providers SET disabled = $2 WHERE id = $1;`, id, disabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectProviders(rows pgx.Rows) ([]*model.Provider, error) {
	var out []*model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
