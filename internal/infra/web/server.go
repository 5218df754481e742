package web

import (
	"context"
	"net/http"
	"time"

	"ai-generation-broker/internal/config"
	"ai-generation-broker/internal/domain/ports/repository"
	"ai-generation-broker/internal/infra/worker"
	"ai-generation-broker/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the admin/ops API: provider toggles, pool inspection, job stops
// and pricing management. Everything except login, health and metrics sits
// behind the session guard.
// RateLimiter caps how often one payer may start a generation.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Server struct {
	auth      *AuthManager
	providers repository.ProviderRepository
	accounts  repository.AccountRepository
	jobUC     usecase.JobUseCase
	pricingUC usecase.PricingUseCase
	genUC     usecase.GenerationUseCase
	pool      *worker.Pool
	limiter   RateLimiter
	broker    config.BrokerConfig
	log       *zerolog.Logger
}

func NewServer(
	auth *AuthManager,
	providers repository.ProviderRepository,
	accounts repository.AccountRepository,
	jobUC usecase.JobUseCase,
	pricingUC usecase.PricingUseCase,
	genUC usecase.GenerationUseCase,
	pool *worker.Pool,
	limiter RateLimiter,
	broker config.BrokerConfig,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		auth:      auth,
		providers: providers,
		accounts:  accounts,
		jobUC:     jobUC,
		pricingUC: pricingUC,
		genUC:     genUC,
		pool:      pool,
		limiter:   limiter,
		broker:    broker,
		log:       logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log))
	r.Use(TraceID())
	r.Use(RequestLog(s.log))
	r.Use(Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/api/v1/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/api/v1/logout", s.handleLogout)

		r.Get("/api/v1/providers", providersListHandler(s.providers))
		r.Post("/api/v1/providers/{id}/enable", providerToggleHandler(s.providers, false))
		r.Post("/api/v1/providers/{id}/disable", providerToggleHandler(s.providers, true))
		r.Get("/api/v1/providers/{name}/accounts", accountsListHandler(s.accounts))
		r.Post("/api/v1/accounts/{id}/status", accountStatusHandler(s.accounts))

		r.Get("/api/v1/jobs/{id}", jobGetHandler(s.jobUC))
		r.Post("/api/v1/jobs/{id}/stop", jobStopHandler(s.jobUC))
		r.Delete("/api/v1/jobs/{id}", jobDeleteHandler(s.jobUC))
		r.Post("/api/v1/generations", generationSubmitHandler(s.genUC, s.pool, s.limiter, s.broker, s.log))

		r.Get("/api/v1/pricing", pricingListHandler(s.pricingUC))
		r.Post("/api/v1/pricing", pricingCreateHandler(s.pricingUC))
		r.Put("/api/v1/pricing/{model}", pricingUpdateHandler(s.pricingUC))
		r.Delete("/api/v1/pricing/{model}", pricingDeleteHandler(s.pricingUC))
	})

	return r
}

// requireSession rejects requests without a valid session token.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !s.auth.CheckPassword(req.Password) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		s.log.Error().Err(err).Msg("mint session token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
