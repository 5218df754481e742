//go:build !integration

// File: internal/usecase/pricing_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
)

func TestPricingUseCase_CRUD(t *testing.T) {
	ctx := context.Background()
	uc := NewPricingUseCase(newMemPricingRepo(), testLogger())

	got, err := uc.Create(ctx, "gpt-4o", 1_000, 2_000)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.ModelName != "gpt-4o" || got.InputTokenPriceMicros != 1_000 || got.OutputTokenPriceMicros != 2_000 || !got.Active {
		t.Fatalf("Create: %+v", got)
	}
	if _, err := uc.Create(ctx, "gpt-4o", 1, 2); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate Create: expected ErrAlreadyExists, got %v", err)
	}
	if _, err := uc.Create(ctx, "  ", 1, 2); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("blank model: expected ErrInvalidArgument, got %v", err)
	}

	// model names are trimmed on Get
	got2, err := uc.Get(ctx, " gpt-4o ")
	if err != nil || got2.ModelName != "gpt-4o" {
		t.Fatalf("Get: %+v err=%v", got2, err)
	}

	newIn := int64(3_000)
	got3, err := uc.Update(ctx, "gpt-4o", &newIn, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got3.InputTokenPriceMicros != 3_000 || got3.OutputTokenPriceMicros != 2_000 {
		t.Fatalf("partial update: %+v", got3)
	}

	list, err := uc.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v len=%d", err, len(list))
	}

	if err := uc.Delete(ctx, "gpt-4o"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, _ = uc.List(ctx)
	if len(list) != 0 {
		t.Fatalf("List after delete: %d rows", len(list))
	}
}

func TestPricingCost_RoundsUpToWholeCaps(t *testing.T) {
	ctx := context.Background()
	uc := NewPricingUseCase(newMemPricingRepo(), testLogger())
	if _, err := uc.Create(ctx, "gpt-4o-mini", 150, 600); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tests := []struct {
		name  string
		usage model.Usage
		want  int64
	}{
		{"zero usage is free", model.Usage{}, 0},
		{"partial micros round up", model.Usage{PromptTokens: 1}, 1},
		{"exact caps do not round", model.Usage{PromptTokens: 10_000, CompletionTokens: 2_500}, 3},
		{"mixed usage", model.Usage{PromptTokens: 100, CompletionTokens: 100}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := uc.Cost(ctx, "gpt-4o-mini", tc.usage)
			if err != nil {
				t.Fatalf("Cost: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Cost(%+v) = %d, want %d", tc.usage, got, tc.want)
			}
		})
	}

	if _, err := uc.Cost(ctx, "unknown-model", model.Usage{PromptTokens: 1}); !errors.Is(err, domain.ErrPricingNotFound) {
		t.Fatalf("unknown model: expected ErrPricingNotFound, got %v", err)
	}
}
