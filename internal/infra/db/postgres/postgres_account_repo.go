package postgres

import (
	"context"
	"errors"
	"fmt"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"
	"ai-generation-broker/internal/infra/security"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

// accountRepo keeps the pooled-account counters in SQL so increments stay
// atomic across sibling processes sharing the pool. Tokens are sealed with
// the process-wide secret box before hitting the table.
type accountRepo struct {
	pool    *pgxpool.Pool
	secrets *security.SecretBox
}

func NewAccountRepo(pool *pgxpool.Pool, secrets *security.SecretBox) *accountRepo {
	return &accountRepo{pool: pool, secrets: secrets}
}

const accountColumns = `id, provider_name, token_enc, status, active_generation_count, used_count, queue_id, max_concurrent, created_at, updated_at`

func (r *accountRepo) scanAccount(row pgx.Row) (*model.PooledAccount, error) {
	var a model.PooledAccount
	var status, tokenEnc string
	err := row.Scan(&a.ID, &a.ProviderName, &tokenEnc, &status, &a.ActiveGenerationCount, &a.UsedCount,
		&a.QueueID, &a.MaxConcurrent, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	if tokenEnc != "" {
		token, err := r.secrets.Open(tokenEnc)
		if err != nil {
			return nil, fmt.Errorf("unseal account token: %w", err)
		}
		a.Token = token
	}
	return &a, nil
}

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.PooledAccount) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tokenEnc := ""
	if a.Token != "" {
		tokenEnc, err = r.secrets.Seal(a.Token)
		if err != nil {
			return fmt.Errorf("seal account token: %w", err)
		}
	}
	_, err = ex.Exec(ctx, `
INSERT INTO pooled_accounts (id, provider_name, token_enc, status, active_generation_count, used_count, queue_id, max_concurrent, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
  provider_name = EXCLUDED.provider_name,
  token_enc = EXCLUDED.token_enc,
  status = EXCLUDED.status,
  queue_id = EXCLUDED.queue_id,
  max_concurrent = EXCLUDED.max_concurrent,
  updated_at = NOW();`,
		a.ID, a.ProviderName, tokenEnc, string(a.Status), a.ActiveGenerationCount, a.UsedCount,
		a.QueueID, a.MaxConcurrent, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PooledAccount, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	return r.scanAccount(ex.QueryRow(ctx, `SELECT `+accountColumns+` FROM pooled_accounts WHERE id = $1;`, id))
}

func (r *accountRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerName string) ([]*model.PooledAccount, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx,
		`SELECT `+accountColumns+` FROM pooled_accounts WHERE provider_name = $1 ORDER BY used_count;`, providerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PooledAccount
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TryAcquire increments both counters in one conditional UPDATE; the WHERE
// clause re-checks status and capacity so two processes cannot overshoot.
func (r *accountRepo) TryAcquire(ctx context.Context, tx repository.Tx, id string) (*model.PooledAccount, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	const q = `
UPDATE pooled_accounts SET
  active_generation_count = active_generation_count + 1,
  used_count = used_count + 1,
  updated_at = NOW()
WHERE id = $1
  AND status = 'active'
  AND (max_concurrent <= 0 OR active_generation_count < max_concurrent)
RETURNING ` + accountColumns + `;`
	a, err := r.scanAccount(ex.QueryRow(ctx, q, id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoAvailableAccounts
	}
	return a, err
}

func (r *accountRepo) ReleaseOne(ctx context.Context, tx repository.Tx, id string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
UPDATE pooled_accounts SET
  active_generation_count = GREATEST(active_generation_count - 1, 0),
  updated_at = NOW()
WHERE id = $1;`, id)
	return err
}

func (r *accountRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.AccountStatus) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := ex.Exec(ctx, `UPDATE pooled_accounts SET status = $2, updated_at = NOW() WHERE id = $1;`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
