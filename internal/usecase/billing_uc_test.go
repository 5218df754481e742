//go:build !integration

// File: internal/usecase/billing_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
)

func testSubscription(payer string, balance int64) *model.Subscription {
	return &model.Subscription{ID: "sub-" + payer, PayerID: payer, Balance: balance}
}

func TestChargeJob_DebitsOnceAndRecordsTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newMemSubscriptionRepo(testSubscription("payer-1", 100))
	uc := NewBillingUseCase(repo, memTxManager{}, testLogger())

	txn, sub, err := uc.ChargeJob(ctx, "payer-1", "job-1", 40)
	if err != nil {
		t.Fatalf("ChargeJob: %v", err)
	}
	if txn == nil || txn.JobID != "job-1" || txn.Amount != 40 {
		t.Fatalf("transaction: %+v", txn)
	}
	if len(txn.ID) != 26 {
		t.Fatalf("transaction id is not a ULID: %q", txn.ID)
	}
	if sub.Balance != 60 {
		t.Fatalf("balance after debit: %d", sub.Balance)
	}

	txns, _ := repo.FindTransactionsByJob(ctx, nil, "job-1")
	if len(txns) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(txns))
	}
}

func TestChargeJob_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemSubscriptionRepo(testSubscription("payer-1", 10))
	uc := NewBillingUseCase(repo, memTxManager{}, testLogger())

	_, _, err := uc.ChargeJob(ctx, "payer-1", "job-1", 40)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// failed debit writes nothing
	txns, _ := repo.FindTransactionsByJob(ctx, nil, "job-1")
	if len(txns) != 0 {
		t.Fatalf("transaction recorded despite failed debit")
	}
	sub, _ := repo.FindByPayer(ctx, nil, "payer-1")
	if sub.Balance != 10 {
		t.Fatalf("balance touched by failed debit: %d", sub.Balance)
	}
}

func TestChargeJob_ZeroAmountRecordsNothing(t *testing.T) {
	ctx := context.Background()
	repo := newMemSubscriptionRepo(testSubscription("payer-1", 10))
	uc := NewBillingUseCase(repo, memTxManager{}, testLogger())

	txn, sub, err := uc.ChargeJob(ctx, "payer-1", "job-1", 0)
	if err != nil || txn != nil || sub != nil {
		t.Fatalf("zero amount: txn=%v sub=%v err=%v", txn, sub, err)
	}
	if _, _, err := uc.ChargeJob(ctx, "payer-1", "job-1", -5); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("negative amount: expected ErrInvalidArgument, got %v", err)
	}
}

func TestCheckAffordable(t *testing.T) {
	ctx := context.Background()
	repo := newMemSubscriptionRepo(testSubscription("payer-1", 50))
	uc := NewBillingUseCase(repo, memTxManager{}, testLogger())

	if err := uc.CheckAffordable(ctx, "payer-1", 50); err != nil {
		t.Fatalf("affordable estimate rejected: %v", err)
	}
	if err := uc.CheckAffordable(ctx, "payer-1", 51); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := uc.CheckAffordable(ctx, "nobody", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown payer: expected ErrNotFound, got %v", err)
	}
}
