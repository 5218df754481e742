//go:build !integration

// File: internal/usecase/balancer_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
)

func poolAccount(id string, max int) *model.PooledAccount {
	return &model.PooledAccount{
		ID:            id,
		ProviderName:  "pooled",
		Status:        model.AccountStatusActive,
		QueueID:       "default",
		MaxConcurrent: max,
	}
}

func TestBalancerReserve_CapacityAndRelease(t *testing.T) {
	ctx := context.Background()
	repo := newMemAccountRepo(poolAccount("a", 2), poolAccount("b", 2))
	uc := NewBalancerUseCase(repo, &memNotifier{}, testLogger())

	// N accounts with capacity c admit exactly N*c concurrent reservations
	reserved := make([]*model.PooledAccount, 0, 4)
	for i := 0; i < 4; i++ {
		a, err := uc.Reserve(ctx, "pooled", SelectionCriteria{})
		if err != nil {
			t.Fatalf("Reserve %d: %v", i, err)
		}
		reserved = append(reserved, a)
	}
	if _, err := uc.Reserve(ctx, "pooled", SelectionCriteria{}); !errors.Is(err, domain.ErrNoAvailableAccounts) {
		t.Fatalf("exhausted pool: expected ErrNoAvailableAccounts, got %v", err)
	}

	// load spread: both accounts carry two active generations
	for _, id := range []string{"a", "b"} {
		a, err := repo.FindByID(ctx, nil, id)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if a.ActiveGenerationCount != 2 {
			t.Fatalf("account %s active=%d, want 2", id, a.ActiveGenerationCount)
		}
	}

	// releasing one slot admits exactly one more reservation
	if err := uc.Release(ctx, reserved[0].ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := uc.Reserve(ctx, "pooled", SelectionCriteria{}); err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
	if _, err := uc.Reserve(ctx, "pooled", SelectionCriteria{}); !errors.Is(err, domain.ErrNoAvailableAccounts) {
		t.Fatalf("pool full again: expected ErrNoAvailableAccounts, got %v", err)
	}
}

func TestBalancerReserve_QueueFilter(t *testing.T) {
	ctx := context.Background()
	a := poolAccount("a", 1)
	a.QueueID = "fast"
	b := poolAccount("b", 1)
	b.QueueID = "relax"
	uc := NewBalancerUseCase(newMemAccountRepo(a, b), &memNotifier{}, testLogger())

	got, err := uc.Reserve(ctx, "pooled", SelectionCriteria{QueueID: "relax"})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got.ID != "b" {
		t.Fatalf("queue filter ignored: got %s", got.ID)
	}
	if _, err := uc.Reserve(ctx, "pooled", SelectionCriteria{QueueID: "relax"}); !errors.Is(err, domain.ErrNoAvailableAccounts) {
		t.Fatalf("expected ErrNoAvailableAccounts for drained queue, got %v", err)
	}
}

func TestBalancerPenalize_Matrix(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		wantStatus model.AccountStatus
		wantAlert  bool
	}{
		{"content policy is not the account's fault", domain.CodeContentPolicy, model.AccountStatusActive, false},
		{"invalid input is not the account's fault", domain.CodeInvalidInput, model.AccountStatusActive, false},
		{"rate limit cools the account down", domain.CodeRateLimited, model.AccountStatusRelax, false},
		{"quota exhaustion cools the account down", domain.CodeQuotaExhausted, model.AccountStatusRelax, false},
		{"ban pulls the account and alerts", domain.CodeAccountBanned, model.AccountStatusBanned, true},
		{"timeout deactivates and alerts", domain.CodeUpstreamTimeout, model.AccountStatusInactive, true},
		{"malformed response deactivates and alerts", domain.CodeMalformedResponse, model.AccountStatusInactive, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			acct := poolAccount("a", 1)
			repo := newMemAccountRepo(acct)
			notifier := &memNotifier{}
			uc := NewBalancerUseCase(repo, notifier, testLogger())

			uc.Penalize(ctx, acct, domain.NewGenerationError(tc.code, "boom", nil))

			got, err := repo.FindByID(ctx, nil, "a")
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			if got.Status != tc.wantStatus {
				t.Fatalf("status after %s: got %s want %s", tc.code, got.Status, tc.wantStatus)
			}
			if alerted := len(notifier.subjects) > 0; alerted != tc.wantAlert {
				t.Fatalf("alert after %s: got %v want %v", tc.code, alerted, tc.wantAlert)
			}
		})
	}
}

func TestBalancerPenalize_UnclassifiedErrorIsIgnored(t *testing.T) {
	ctx := context.Background()
	acct := poolAccount("a", 1)
	repo := newMemAccountRepo(acct)
	uc := NewBalancerUseCase(repo, &memNotifier{}, testLogger())

	uc.Penalize(ctx, acct, errors.New("connection reset"))

	got, _ := repo.FindByID(ctx, nil, "a")
	if got.Status != model.AccountStatusActive {
		t.Fatalf("unclassified error penalized the account: %s", got.Status)
	}
}
