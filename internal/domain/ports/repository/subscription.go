package repository

import (
	"context"

	"ai-generation-broker/internal/domain/model"
)

type SubscriptionRepository interface {
	FindByPayer(ctx context.Context, tx Tx, payerID string) (*model.Subscription, error)

	// DebitBalance atomically subtracts amount from the subscription balance,
	// conditional on the balance staying non-negative. Returns
	// domain.ErrInsufficientBalance when the payer cannot cover amount.
	DebitBalance(ctx context.Context, tx Tx, subscriptionID string, amount int64) (*model.Subscription, error)

	SaveTransaction(ctx context.Context, tx Tx, t *model.Transaction) error
	FindTransactionsByJob(ctx context.Context, tx Tx, jobID string) ([]*model.Transaction, error)
}
