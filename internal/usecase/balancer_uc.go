// File: internal/usecase/balancer_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/domain/ports/repository"
	"ai-generation-broker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// SelectionCriteria narrows which accounts of a pool may serve a request.
type SelectionCriteria struct {
	QueueID string // empty matches any queue
}

// Compile-time check
var _ BalancerUseCase = (*balancerUC)(nil)

// BalancerUseCase selects and tracks health of pooled upstream accounts.
type BalancerUseCase interface {
	// Reserve picks one available account from the provider's pool and
	// atomically increments its counters. Fails with
	// domain.ErrNoAvailableAccounts when the pool is exhausted.
	Reserve(ctx context.Context, providerName string, crit SelectionCriteria) (*model.PooledAccount, error)
	// Release returns the reserved slot. Must be called exactly once per
	// successful Reserve, on every exit path.
	Release(ctx context.Context, accountID string) error
	// Penalize reacts to a failed generation attempt. Request-caused errors
	// (content policy, invalid input) never penalize the account.
	Penalize(ctx context.Context, account *model.PooledAccount, genErr error)
}

type balancerUC struct {
	accounts repository.AccountRepository
	notifier adapter.Notifier
	log      *zerolog.Logger
}

func NewBalancerUseCase(accounts repository.AccountRepository, notifier adapter.Notifier, logger *zerolog.Logger) *balancerUC {
	return &balancerUC{accounts: accounts, notifier: notifier, log: logger}
}

func (b *balancerUC) Reserve(ctx context.Context, providerName string, crit SelectionCriteria) (*model.PooledAccount, error) {
	pool, err := b.accounts.ListByProvider(ctx, repository.NoTX, providerName)
	if err != nil {
		return nil, err
	}

	candidates := make([]*model.PooledAccount, 0, len(pool))
	for _, a := range pool {
		if crit.QueueID != "" && a.QueueID != crit.QueueID {
			continue
		}
		if !a.Available() {
			continue
		}
		candidates = append(candidates, a)
	}
	// least-used first so load spreads across the pool
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ActiveGenerationCount != candidates[j].ActiveGenerationCount {
			return candidates[i].ActiveGenerationCount < candidates[j].ActiveGenerationCount
		}
		return candidates[i].UsedCount < candidates[j].UsedCount
	})

	for _, a := range candidates {
		// TryAcquire re-checks capacity atomically; a concurrent reservation
		// from a sibling process may have taken the last slot.
		acquired, err := b.accounts.TryAcquire(ctx, repository.NoTX, a.ID)
		if errors.Is(err, domain.ErrNoAvailableAccounts) {
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.IncAccountReserve(providerName, "ok")
		return acquired, nil
	}
	metrics.IncAccountReserve(providerName, "exhausted")
	return nil, domain.ErrNoAvailableAccounts
}

func (b *balancerUC) Release(ctx context.Context, accountID string) error {
	return b.accounts.ReleaseOne(ctx, repository.NoTX, accountID)
}

func (b *balancerUC) Penalize(ctx context.Context, account *model.PooledAccount, genErr error) {
	if account == nil || !domain.IsAccountFault(genErr) {
		return
	}
	code := domain.ErrorCode(genErr)
	var next model.AccountStatus
	emergency := false
	switch code {
	case domain.CodeRateLimited, domain.CodeQuotaExhausted:
		next = model.AccountStatusRelax
	case domain.CodeAccountBanned:
		next = model.AccountStatusBanned
		emergency = true
	case domain.CodeUpstreamTimeout, domain.CodeMalformedResponse:
		next = model.AccountStatusInactive
		emergency = true
	default:
		return
	}

	if err := b.accounts.SetStatus(ctx, repository.NoTX, account.ID, next); err != nil {
		b.log.Error().Err(err).Str("account_id", account.ID).Msg("account penalty update failed")
		return
	}
	metrics.IncAccountPenalty(account.ProviderName, string(next))
	b.log.Warn().
		Str("account_id", account.ID).
		Str("provider", account.ProviderName).
		Str("code", code).
		Str("status", string(next)).
		Msg("account penalized")

	if emergency {
		// pulled from rotation; operators must step in
		b.notifier.Notify(ctx, "account emergency reassignment",
			fmt.Sprintf("account %s (%s) moved to %s after %s", account.ID, account.ProviderName, next, code))
	}
}
