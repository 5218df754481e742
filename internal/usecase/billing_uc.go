// File: internal/usecase/billing_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"time"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ BillingUseCase = (*billingUC)(nil)

// BillingUseCase debits caps from a payer's subscription. The debit and the
// transaction record are written in one database transaction so a job is
// billed exactly once or not at all.
type BillingUseCase interface {
	// ChargeJob debits amount caps and records a transaction referencing the
	// job. Zero amounts record nothing and return nil values.
	ChargeJob(ctx context.Context, payerID, jobID string, amount int64) (*model.Transaction, *model.Subscription, error)
	// CheckAffordable fails with domain.ErrInsufficientBalance when the payer
	// cannot cover the estimated cost. Used as a pre-flight before a job starts.
	CheckAffordable(ctx context.Context, payerID string, estimate int64) error
}

type billingUC struct {
	subs repository.SubscriptionRepository
	tm   repository.TransactionManager
	log  *zerolog.Logger
}

func NewBillingUseCase(subs repository.SubscriptionRepository, tm repository.TransactionManager, logger *zerolog.Logger) *billingUC {
	return &billingUC{subs: subs, tm: tm, log: logger}
}

func (b *billingUC) ChargeJob(ctx context.Context, payerID, jobID string, amount int64) (*model.Transaction, *model.Subscription, error) {
	if amount < 0 {
		return nil, nil, domain.ErrInvalidArgument
	}
	if amount == 0 {
		return nil, nil, nil
	}

	var (
		txn *model.Transaction
		sub *model.Subscription
	)
	err := b.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		s, err := b.subs.FindByPayer(ctx, qx, payerID)
		if err != nil {
			return err
		}
		debited, err := b.subs.DebitBalance(ctx, qx, s.ID, amount)
		if err != nil {
			return err
		}
		t, err := model.NewTransaction(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(), s.ID, jobID, amount)
		if err != nil {
			return err
		}
		if err := b.subs.SaveTransaction(ctx, qx, t); err != nil {
			return err
		}
		txn, sub = t, debited
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	b.log.Info().
		Str("job_id", jobID).
		Str("transaction_id", txn.ID).
		Int64("amount", amount).
		Int64("balance", sub.Balance).
		Msg("caps debited")
	return txn, sub, nil
}

func (b *billingUC) CheckAffordable(ctx context.Context, payerID string, estimate int64) error {
	s, err := b.subs.FindByPayer(ctx, repository.NoTX, payerID)
	if err != nil {
		return err
	}
	if !s.CanAfford(estimate) {
		return domain.ErrInsufficientBalance
	}
	return nil
}
