package repository

import (
	"context"

	"ai-generation-broker/internal/domain/model"
)

type ModelPricingRepository interface {
	GetByModelName(ctx context.Context, tx Tx, modelName string) (*model.ModelPricing, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.ModelPricing, error)
	Create(ctx context.Context, tx Tx, p *model.ModelPricing) error
	Update(ctx context.Context, tx Tx, p *model.ModelPricing) error
}
