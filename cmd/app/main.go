// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-generation-broker/internal/config"
	"ai-generation-broker/internal/domain/ports/adapter"
	transports "ai-generation-broker/internal/infra/adapters/provider"
	pg "ai-generation-broker/internal/infra/db/postgres"
	"ai-generation-broker/internal/infra/events"
	"ai-generation-broker/internal/infra/logging"
	"ai-generation-broker/internal/infra/metrics"
	red "ai-generation-broker/internal/infra/redis"
	"ai-generation-broker/internal/infra/security"
	"ai-generation-broker/internal/infra/web"
	"ai-generation-broker/internal/infra/worker"
	"ai-generation-broker/internal/usecase"

	"github.com/rs/zerolog"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- Secrets ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 16 && len(encKey) != 24 && len(encKey) != 32 {
		logger.Warn().Msg("security.encryption_key not set or wrong length; using dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	secrets, err := security.NewSecretBox(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("secret box")
	}

	// ---- Repositories ----
	jobRepo := pg.NewJobRepo(pool)
	providerRepo := pg.NewProviderRepo(pool)
	accountRepo := pg.NewAccountRepo(pool, secrets)
	subRepo := pg.NewSubscriptionRepo(pool)
	pricingRepo := pg.NewModelPricingRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Events & signals ----
	sink := events.NewRedisSink(redisClient, logger)
	notifier := events.NewLogNotifier(logger)
	bus := red.NewSignalBus(redisClient, logger)
	defer bus.Close()

	// ---- Use cases ----
	jobUC := usecase.NewJobUseCase(jobRepo, sink, bus, logger)
	balancerUC := usecase.NewBalancerUseCase(accountRepo, notifier, logger)
	pricingUC := usecase.NewPricingUseCase(pricingRepo, logger)
	billingUC := usecase.NewBillingUseCase(subRepo, txManager, logger)

	providerUC := usecase.NewProviderUseCase(providerRepo, balancerUC, buildTransports(ctx, cfg, logger), logger)
	genUC := usecase.NewGenerationUseCase(
		jobUC, providerUC, balancerUC, pricingUC, billingUC,
		transports.NewTiktokenCounter(), sink, logger,
	)

	// ---- Startup sweep (before accepting stop signals) ----
	sweeper := worker.NewSweeper(jobRepo, red.NewLocker(redisClient), logger)
	if err := sweeper.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("startup sweep")
	}

	// ---- Stop relay ----
	if err := bus.SubscribeStop(ctx, jobUC.HandleStopSignal); err != nil {
		logger.Fatal().Err(err).Msg("signal bus subscribe")
	}

	// ---- Worker pool ----
	workerPool := worker.NewPool(cfg.Worker.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	// ---- Admin/ops HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.SessionSecret, cfg.Admin.Password, !cfg.Runtime.Dev, 30*time.Minute)
	srv := web.NewServer(auth, providerRepo, accountRepo, jobUC, pricingUC, genUC, workerPool,
		red.NewRateLimiter(redisClient), cfg.Broker, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: srv.Router(),
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("admin server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin server")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = httpServer.Shutdown(shutCtx)
	cancel()
}

// buildTransports maps provider names to concrete clients. Dev mode adds a
// noop transport so flows can be exercised without upstream keys.
func buildTransports(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) map[string]adapter.ProviderTransport {
	out := make(map[string]adapter.ProviderTransport)

	if cfg.AI.OpenAIKey != "" {
		t, err := transports.NewOpenAITransport("openai", cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai transport")
		}
		out["openai"] = transports.NewLimitedTransport(t, cfg.AI.ConcurrentLimit)
	}
	if cfg.AI.GeminiKey != "" {
		t, err := transports.NewGeminiTransport(ctx, "gemini", cfg.AI.GeminiKey, 0)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini transport")
		}
		out["gemini"] = transports.NewLimitedTransport(t, cfg.AI.ConcurrentLimit)
	}
	if cfg.Runtime.Dev {
		out["noop"] = transports.NewNoopTransport("noop")
	}
	if len(out) == 0 {
		logger.Fatal().Msg("no provider configured: set ai.openai_key or ai.gemini_key")
	}
	return out
}
