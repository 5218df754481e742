package model

import (
	"time"

	"github.com/google/uuid"
)

// ModelPricing maps one model name to its per-token caps prices in micros.
type ModelPricing struct {
	ID                     string
	ModelName              string
	InputTokenPriceMicros  int64
	OutputTokenPriceMicros int64
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func NewModelPricing(modelName string, inputPriceMicros, outputPriceMicros int64, active bool) *ModelPricing {
	now := time.Now()
	return &ModelPricing{
		ID:                     uuid.NewString(),
		ModelName:              modelName,
		InputTokenPriceMicros:  inputPriceMicros,
		OutputTokenPriceMicros: outputPriceMicros,
		Active:                 active,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}

// Cost converts usage to whole caps, rounding up so partial micros still bill.
func (p *ModelPricing) Cost(u Usage) int64 {
	micros := int64(u.PromptTokens)*p.InputTokenPriceMicros +
		int64(u.CompletionTokens)*p.OutputTokenPriceMicros
	if micros <= 0 {
		return 0
	}
	return (micros + 999_999) / 1_000_000
}
