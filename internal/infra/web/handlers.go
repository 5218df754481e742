package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ai-generation-broker/internal/config"
	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/domain/ports/repository"
	"ai-generation-broker/internal/infra/redis"
	"ai-generation-broker/internal/infra/worker"
	"ai-generation-broker/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type providerView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Disabled   bool     `json:"disabled"`
	FallbackID *string  `json:"fallback_id,omitempty"`
	ParentID   *string  `json:"parent_id,omitempty"`
	Order      int      `json:"order"`
	Pooled     bool     `json:"pooled"`
	Models     []string `json:"models"`
}

func providersListHandler(providers repository.ProviderRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := providers.List(r.Context(), repository.NoTX)
		if err != nil {
			http.Error(w, "Failed to list providers", http.StatusInternalServerError)
			return
		}
		out := make([]providerView, 0, len(list))
		for _, p := range list {
			out = append(out, providerView{
				ID:         p.ID,
				Name:       p.Name,
				Disabled:   p.Disabled,
				FallbackID: p.FallbackID,
				ParentID:   p.ParentID,
				Order:      p.Order,
				Pooled:     p.Pooled,
				Models:     p.Models,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func providerToggleHandler(providers repository.ProviderRepository, disabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := providers.SetDisabled(r.Context(), repository.NoTX, id, disabled); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Provider not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to update provider", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type accountView struct {
	ID                    string `json:"id"`
	ProviderName          string `json:"provider_name"`
	Status                string `json:"status"`
	ActiveGenerationCount int    `json:"active_generation_count"`
	UsedCount             int64  `json:"used_count"`
	QueueID               string `json:"queue_id"`
	MaxConcurrent         int    `json:"max_concurrent"`
}

func accountsListHandler(accounts repository.AccountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		list, err := accounts.ListByProvider(r.Context(), repository.NoTX, name)
		if err != nil {
			http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
			return
		}
		out := make([]accountView, 0, len(list))
		for _, a := range list {
			out = append(out, accountView{
				ID:                    a.ID,
				ProviderName:          a.ProviderName,
				Status:                string(a.Status),
				ActiveGenerationCount: a.ActiveGenerationCount,
				UsedCount:             a.UsedCount,
				QueueID:               a.QueueID,
				MaxConcurrent:         a.MaxConcurrent,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func accountStatusHandler(accounts repository.AccountRepository) http.HandlerFunc {
	valid := map[model.AccountStatus]bool{
		model.AccountStatusActive:   true,
		model.AccountStatusRelax:    true,
		model.AccountStatusBanned:   true,
		model.AccountStatusInactive: true,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		status := model.AccountStatus(req.Status)
		if !valid[status] {
			http.Error(w, "Unknown status", http.StatusBadRequest)
			return
		}
		if err := accounts.SetStatus(r.Context(), repository.NoTX, id, status); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Account not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to update account", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type jobView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Status            string `json:"status"`
	Progress          int    `json:"progress"`
	IsStopAllowed     bool   `json:"is_stop_allowed"`
	Error             string `json:"error,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	ChatID            string `json:"chat_id"`
	MessageID         string `json:"message_id"`
	MJNativeMessageID string `json:"mj_native_message_id,omitempty"`
}

func toJobView(j *model.Job) jobView {
	return jobView{
		ID:                j.ID,
		Name:              j.Name,
		Status:            string(j.Status),
		Progress:          j.Progress,
		IsStopAllowed:     j.IsStopAllowed,
		Error:             j.Error,
		ErrorCode:         j.ErrorCode,
		ChatID:            j.ChatID,
		MessageID:         j.MessageID,
		MJNativeMessageID: j.MJNativeMessageID,
	}
}

func jobGetHandler(jobUC usecase.JobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := jobUC.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to get job", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toJobView(job))
	}
}

func jobStopHandler(jobUC usecase.JobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Scope string `json:"scope"`
		}
		// body is optional; default relays the stop to the owning process
		_ = decodeJSON(r, &req)
		scope := usecase.StopScopeProcess
		if req.Scope == string(usecase.StopScopeJob) {
			scope = usecase.StopScopeJob
		}

		job, err := jobUC.Stop(r.Context(), chi.URLParam(r, "id"), scope)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "Job not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrJobNotStoppable), errors.Is(err, domain.ErrJobNotPending):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "Failed to stop job", http.StatusInternalServerError)
			}
			return
		}
		if job.Status != model.JobStatusStopped {
			// relayed to the owning process; stop is asynchronous
			writeJSON(w, http.StatusAccepted, toJobView(job))
			return
		}
		writeJSON(w, http.StatusOK, toJobView(job))
	}
}

func jobDeleteHandler(jobUC usecase.JobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := jobUC.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Job not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to delete job", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type generationSubmitRequest struct {
	PayerID   string            `json:"payer_id"`
	ChatID    string            `json:"chat_id"`
	MessageID string            `json:"message_id"`
	Kind      string            `json:"kind"`
	Model     string            `json:"model"`
	Messages  []adapter.Message `json:"messages"`
	TimeoutMs int64             `json:"timeout_ms"`
	Stoppable bool              `json:"stoppable"`
}

// generationSubmitHandler queues a generation on the worker pool. Progress and
// the terminal outcome travel through the event sink, keyed by chat id.
func generationSubmitHandler(genUC usecase.GenerationUseCase, pool *worker.Pool, limiter RateLimiter, broker config.BrokerConfig, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generationSubmitRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Model == "" || len(req.Messages) == 0 {
			http.Error(w, "model and messages are required", http.StatusBadRequest)
			return
		}
		if limiter != nil && req.PayerID != "" {
			ok, err := limiter.Allow(r.Context(), redis.PayerGenerationKey(req.PayerID, req.Kind), broker.RatePerMinute, time.Minute)
			if err != nil {
				logger.Warn().Err(err).Str("payer_id", req.PayerID).Msg("rate limit check failed")
			} else if !ok {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
		}
		timeoutMs := req.TimeoutMs
		if timeoutMs <= 0 {
			timeoutMs = broker.DefaultTimeoutMs
		}
		params := usecase.GenerateParams{
			PayerID:   req.PayerID,
			ChatID:    req.ChatID,
			MessageID: req.MessageID,
			Kind:      req.Kind,
			Model:     req.Model,
			Messages:  req.Messages,
			TimeoutMs: timeoutMs,
			Stoppable: req.Stoppable,
		}
		err := pool.Submit(func(ctx context.Context) error {
			if _, err := genUC.Generate(ctx, params); err != nil {
				logger.Error().Err(err).
					Str("chat_id", params.ChatID).
					Str("model", params.Model).
					Msg("generation failed")
			}
			return nil
		})
		if err != nil {
			http.Error(w, "Queue is full", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

type pricingView struct {
	ModelName              string `json:"model_name"`
	InputTokenPriceMicros  int64  `json:"input_token_price_micros"`
	OutputTokenPriceMicros int64  `json:"output_token_price_micros"`
	Active                 bool   `json:"active"`
}

func toPricingView(p *model.ModelPricing) pricingView {
	return pricingView{
		ModelName:              p.ModelName,
		InputTokenPriceMicros:  p.InputTokenPriceMicros,
		OutputTokenPriceMicros: p.OutputTokenPriceMicros,
		Active:                 p.Active,
	}
}

func pricingListHandler(pricingUC usecase.PricingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := pricingUC.List(r.Context())
		if err != nil {
			http.Error(w, "Failed to list pricing", http.StatusInternalServerError)
			return
		}
		out := make([]pricingView, 0, len(list))
		for _, p := range list {
			out = append(out, toPricingView(p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type pricingCreateRequest struct {
	ModelName              string `json:"model_name"`
	InputTokenPriceMicros  int64  `json:"input_token_price_micros"`
	OutputTokenPriceMicros int64  `json:"output_token_price_micros"`
}

func pricingCreateHandler(pricingUC usecase.PricingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pricingCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		p, err := pricingUC.Create(r.Context(), req.ModelName, req.InputTokenPriceMicros, req.OutputTokenPriceMicros)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidArgument):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, domain.ErrAlreadyExists):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "Failed to create pricing", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusCreated, toPricingView(p))
	}
}

type pricingUpdateRequest struct {
	InputTokenPriceMicros  *int64 `json:"input_token_price_micros"`
	OutputTokenPriceMicros *int64 `json:"output_token_price_micros"`
}

func pricingUpdateHandler(pricingUC usecase.PricingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pricingUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		p, err := pricingUC.Update(r.Context(), chi.URLParam(r, "model"), req.InputTokenPriceMicros, req.OutputTokenPriceMicros)
		if err != nil {
			if errors.Is(err, domain.ErrPricingNotFound) || errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Pricing not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to update pricing", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toPricingView(p))
	}
}

func pricingDeleteHandler(pricingUC usecase.PricingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pricingUC.Delete(r.Context(), chi.URLParam(r, "model")); err != nil {
			if errors.Is(err, domain.ErrPricingNotFound) || errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Pricing not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to delete pricing", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
