// File: internal/usecase/pricing_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// PricingUseCase exposes the pricing table and the pure cost function the
// streaming pipeline consumes.
type PricingUseCase interface {
	// List returns all active model pricing rows.
	List(ctx context.Context) ([]*model.ModelPricing, error)

	// Get returns the active pricing for a specific model name.
	Get(ctx context.Context, modelName string) (*model.ModelPricing, error)

	// Cost maps (model, usage) to whole caps. Unknown models fail with
	// domain.ErrPricingNotFound so a job can fail cleanly rather than bill an
	// unknown amount.
	Cost(ctx context.Context, modelName string, usage model.Usage) (int64, error)

	// Create inserts a new pricing row; ErrAlreadyExists when the model is
	// already actively priced.
	Create(ctx context.Context, modelName string, inputMicros, outputMicros int64) (*model.ModelPricing, error)

	// Update mutates fields for an existing pricing row. Nil pointers mean
	// "no change".
	Update(ctx context.Context, modelName string, inputMicros, outputMicros *int64) (*model.ModelPricing, error)

	// Delete deactivates a model's pricing (soft-delete).
	Delete(ctx context.Context, modelName string) error
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	prices repository.ModelPricingRepository
	log    *zerolog.Logger
}

func NewPricingUseCase(prices repository.ModelPricingRepository, logger *zerolog.Logger) PricingUseCase {
	return &pricingUC{prices: prices, log: logger}
}

func (p *pricingUC) List(ctx context.Context) ([]*model.ModelPricing, error) {
	return p.prices.ListActive(ctx, repository.NoTX)
}

func (p *pricingUC) Get(ctx context.Context, modelName string) (*model.ModelPricing, error) {
	return p.prices.GetByModelName(ctx, repository.NoTX, normalizeModelName(modelName))
}

func (p *pricingUC) Cost(ctx context.Context, modelName string, usage model.Usage) (int64, error) {
	rec, err := p.prices.GetByModelName(ctx, repository.NoTX, normalizeModelName(modelName))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrPricingNotFound
		}
		return 0, err
	}
	return rec.Cost(usage), nil
}

func (p *pricingUC) Create(ctx context.Context, modelName string, inputMicros, outputMicros int64) (*model.ModelPricing, error) {
	mn := normalizeModelName(modelName)
	if mn == "" {
		return nil, domain.ErrInvalidArgument
	}
	if existing, err := p.prices.GetByModelName(ctx, repository.NoTX, mn); err == nil && existing != nil {
		return nil, domain.ErrAlreadyExists
	}
	rec := model.NewModelPricing(mn, inputMicros, outputMicros, true)
	if err := p.prices.Create(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *pricingUC) Update(ctx context.Context, modelName string, inputMicros, outputMicros *int64) (*model.ModelPricing, error) {
	rec, err := p.prices.GetByModelName(ctx, repository.NoTX, normalizeModelName(modelName))
	if err != nil {
		return nil, err
	}
	if inputMicros != nil {
		rec.InputTokenPriceMicros = *inputMicros
	}
	if outputMicros != nil {
		rec.OutputTokenPriceMicros = *outputMicros
	}
	if err := p.prices.Update(ctx, repository.NoTX, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete marks the row inactive; double-delete is idempotent success.
func (p *pricingUC) Delete(ctx context.Context, modelName string) error {
	rec, err := p.prices.GetByModelName(ctx, repository.NoTX, normalizeModelName(modelName))
	if err != nil {
		return err
	}
	if !rec.Active {
		return nil
	}
	rec.Active = false
	return p.prices.Update(ctx, repository.NoTX, rec)
}

func normalizeModelName(s string) string {
	return strings.TrimSpace(s)
}
