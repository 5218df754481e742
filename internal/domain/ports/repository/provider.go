package repository

import (
	"context"

	"ai-generation-broker/internal/domain/model"
)

type ProviderRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Provider) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Provider, error)
	// ListEnabledByModel returns enabled providers supporting model, ordered
	// by their configured preference order.
	ListEnabledByModel(ctx context.Context, tx Tx, modelName string) ([]*model.Provider, error)
	SetDisabled(ctx context.Context, tx Tx, id string, disabled bool) error
	List(ctx context.Context, tx Tx) ([]*model.Provider, error)
}
