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

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) FindByPayer(ctx context.Context, tx repository.Tx, payerID string) (*model.Subscription, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var s model.Subscription
	err = ex.QueryRow(ctx,
		`SELECT id, payer_id, balance, created_at, updated_at FROM subscriptions WHERE payer_id = $1;`, payerID).
		Scan(&s.ID, &s.PayerID, &s.Balance, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DebitBalance is conditional on the balance covering the amount; the guard
// lives in the WHERE clause so concurrent debits cannot take it negative.
func (r *subscriptionRepo) DebitBalance(ctx context.Context, tx repository.Tx, subscriptionID string, amount int64) (*model.Subscription, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	var s model.Subscription
	err = ex.QueryRow(ctx, `
UPDATE subscriptions SET balance = balance - $2, updated_at = NOW()
WHERE id = $1 AND balance >= $2
RETURNING id, payer_id, balance, created_at, updated_at;`, subscriptionID, amount).
		Scan(&s.ID, &s.PayerID, &s.Balance, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInsufficientBalance
		}
		return nil, err
	}
	return &s, nil
}

func (r *subscriptionRepo) SaveTransaction(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx, `
INSERT INTO transactions (id, subscription_id, job_id, amount, created_at)
VALUES ($1, $2, $3, $4, $5);`,
		t.ID, t.SubscriptionID, t.JobID, t.Amount, t.CreatedAt)
	return err
}

func (r *subscriptionRepo) FindTransactionsByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Transaction, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	rows, err := ex.Query(ctx, `
SELECT id, subscription_id, job_id, amount, created_at
FROM transactions WHERE job_id = $1 ORDER BY id;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		var t model.Transaction
		if err := rows.Scan(&t.ID, &t.SubscriptionID, &t.JobID, &t.Amount, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
