package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"ai-generation-broker/internal/config"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/repository"
	pg "ai-generation-broker/internal/infra/db/postgres"
	"ai-generation-broker/internal/infra/logging"
	"ai-generation-broker/internal/infra/security"
	"ai-generation-broker/internal/usecase"
)

// Seeds a development database with a provider chain, a small account pool
// and pricing for the default models. Idempotent: upserts by fixed ids.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	encKey := cfg.Security.EncryptionKey
	if encKey == "" {
		encKey = "0123456789abcdef0123456789abcdef"
	}
	secrets, err := security.NewSecretBox(encKey)
	if err != nil {
		log.Fatalf("secret box: %v", err)
	}

	logger := logging.New(cfg.Log, true)
	providerRepo := pg.NewProviderRepo(pool)
	accountRepo := pg.NewAccountRepo(pool, secrets)
	pricingUC := usecase.NewPricingUseCase(pg.NewModelPricingRepo(pool), logger)

	// Provider chain: openai falls back to gemini; a pooled family with two
	// slots demonstrates account balancing.
	geminiID := "00000000-0000-0000-0000-000000000002"
	providers := []*model.Provider{
		{
			ID:         "00000000-0000-0000-0000-000000000001",
			Name:       "openai",
			FallbackID: &geminiID,
			Order:      1,
			Models:     []string{"gpt-4o-mini", "gpt-4o"},
		},
		{
			ID:     geminiID,
			Name:   "gemini",
			Order:  2,
			Models: []string{"gemini-2.0-flash", "gpt-4o-mini"},
		},
		{
			ID:     "00000000-0000-0000-0000-000000000003",
			Name:   "noop",
			Order:  3,
			Pooled: true,
			Models: []string{"noop-model"},
		},
	}
	for _, p := range providers {
		if err := providerRepo.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("seed provider %q: %v", p.Name, err)
		}
		fmt.Printf("seeded provider: %s (order=%d pooled=%v models=%v)\n", p.Name, p.Order, p.Pooled, p.Models)
	}

	now := time.Now()
	accounts := []*model.PooledAccount{
		{
			ID:            "10000000-0000-0000-0000-000000000001",
			ProviderName:  "noop",
			Token:         "dev-token-a",
			Status:        model.AccountStatusActive,
			QueueID:       "default",
			MaxConcurrent: 3,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            "10000000-0000-0000-0000-000000000002",
			ProviderName:  "noop",
			Token:         "dev-token-b",
			Status:        model.AccountStatusActive,
			QueueID:       "default",
			MaxConcurrent: 3,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	for _, a := range accounts {
		if err := accountRepo.Save(ctx, repository.NoTX, a); err != nil {
			log.Fatalf("seed account %q: %v", a.ID, err)
		}
		fmt.Printf("seeded account: %s (%s, max=%d)\n", a.ID, a.ProviderName, a.MaxConcurrent)
	}

	pricing := []struct {
		Model  string
		Input  int64
		Output int64
	}{
		{"gpt-4o-mini", 150, 600},
		{"gpt-4o", 2_500, 10_000},
		{"gemini-2.0-flash", 100, 400},
		{"noop-model", 1, 1},
	}
	for _, pr := range pricing {
		p, err := pricingUC.Create(ctx, pr.Model, pr.Input, pr.Output)
		if err != nil {
			log.Printf("pricing %q: %v (skipping)", pr.Model, err)
			continue
		}
		fmt.Printf("seeded pricing: %s (in=%d out=%d micros/token)\n", p.ModelName, p.InputTokenPriceMicros, p.OutputTokenPriceMicros)
	}

	fmt.Println("Seeding complete.")
}
