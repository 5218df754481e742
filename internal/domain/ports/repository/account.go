package repository

import (
	"context"

	"ai-generation-broker/internal/domain/model"
)

// AccountRepository persists pooled accounts. The counter operations must be
// atomic at the storage layer: accounts are shared by sibling processes, so
// in-process locking cannot protect ActiveGenerationCount.
type AccountRepository interface {
	Save(ctx context.Context, tx Tx, a *model.PooledAccount) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PooledAccount, error)
	ListByProvider(ctx context.Context, tx Tx, providerName string) ([]*model.PooledAccount, error)

	// TryAcquire atomically increments active_generation_count and used_count
	// of the given account, conditional on the account still being active and
	// under capacity. Returns domain.ErrNoAvailableAccounts when the condition
	// no longer holds.
	TryAcquire(ctx context.Context, tx Tx, id string) (*model.PooledAccount, error)

	// ReleaseOne atomically decrements active_generation_count, flooring at 0.
	ReleaseOne(ctx context.Context, tx Tx, id string) error

	SetStatus(ctx context.Context, tx Tx, id string, status model.AccountStatus) error
}
