// File: internal/usecase/provider_uc.go
package usecase

import (
	"context"
	"errors"
	"sync"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// Dispatch is one successfully opened provider stream plus its attribution.
// Release must be called once when the stream is finished with, on every exit
// path; it returns the pooled-account slot (idempotent).
type Dispatch struct {
	Provider *model.Provider
	Account  *model.PooledAccount
	Chunks   <-chan model.GenerationChunk
	Errs     <-chan error

	releaseOnce sync.Once
	release     func(ctx context.Context)
}

func (d *Dispatch) Release(ctx context.Context) {
	if d.release == nil {
		return
	}
	d.releaseOnce.Do(func() { d.release(ctx) })
}

// Compile-time check
var _ ProviderUseCase = (*providerUC)(nil)

type ProviderUseCase interface {
	// Resolve picks the default enabled provider for a model, skipping
	// excluded ids. Fails with domain.ErrProviderNotFound when no enabled
	// provider supports the model.
	Resolve(ctx context.Context, modelName string, excluded ...string) (*model.Provider, error)
	// DispatchStream walks the provider and its fallback chain until a stream
	// opens. Non-retryable errors propagate immediately; when every link
	// fails, the first failure is surfaced, not the last fallback's.
	DispatchStream(ctx context.Context, providerID string, req adapter.GenerationRequest, excluded ...string) (*Dispatch, error)
}

type providerUC struct {
	providers  repository.ProviderRepository
	balancer   BalancerUseCase
	transports map[string]adapter.ProviderTransport // keyed by provider name
	log        *zerolog.Logger
}

func NewProviderUseCase(
	providers repository.ProviderRepository,
	balancer BalancerUseCase,
	transports map[string]adapter.ProviderTransport,
	logger *zerolog.Logger,
) *providerUC {
	return &providerUC{
		providers:  providers,
		balancer:   balancer,
		transports: transports,
		log:        logger,
	}
}

func (u *providerUC) Resolve(ctx context.Context, modelName string, excluded ...string) (*model.Provider, error) {
	candidates, err := u.providers.ListEnabledByModel(ctx, repository.NoTX, modelName)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}
	for _, p := range candidates {
		if skip[p.ID] {
			continue
		}
		return p, nil
	}
	return nil, domain.ErrProviderNotFound
}

func (u *providerUC) DispatchStream(ctx context.Context, providerID string, req adapter.GenerationRequest, excluded ...string) (*Dispatch, error) {
	visited := make(map[string]bool, 4)
	for _, id := range excluded {
		visited[id] = true
	}

	var firstErr error
	cur := providerID
	for {
		if visited[cur] {
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, domain.ErrFallbackCycle
		}
		visited[cur] = true

		p, err := u.providers.FindByID(ctx, repository.NoTX, cur)
		if err != nil {
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, err
		}

		if p.Disabled {
			// no attempt is made on a disabled provider
			if p.FallbackID != nil {
				cur = *p.FallbackID
				continue
			}
			if firstErr != nil {
				return nil, firstErr
			}
			return nil, domain.ErrProviderDisabled
		}

		d, err := u.attempt(ctx, p, req)
		if err == nil {
			return d, nil
		}
		if !domain.IsRetryable(err) {
			return nil, err
		}
		u.log.Warn().Err(err).
			Str("provider", p.Name).
			Str("model", req.Model).
			Str("account_id", req.AccountID).
			Msg("provider attempt failed")
		if firstErr == nil {
			firstErr = err
		}
		if p.FallbackID == nil {
			return nil, firstErr
		}
		cur = *p.FallbackID
	}
}

// attempt reserves pool capacity when needed and opens the stream. On
// failure the reserved slot is returned and the account penalized before the
// caller moves on to a fallback.
func (u *providerUC) attempt(ctx context.Context, p *model.Provider, req adapter.GenerationRequest) (*Dispatch, error) {
	transport, err := u.transportFor(ctx, p)
	if err != nil {
		return nil, err
	}

	var account *model.PooledAccount
	if p.Pooled {
		account, err = u.balancer.Reserve(ctx, p.Name, SelectionCriteria{})
		if err != nil {
			// pool exhaustion is a provider-level failure; callers may fall
			// back to a sibling provider family
			return nil, err
		}
		req.AccountID = account.ID
		req.AccountToken = account.Token
	}

	chunks, errs, err := transport.Send(ctx, req)
	if err != nil {
		if account != nil {
			if rerr := u.balancer.Release(ctx, account.ID); rerr != nil {
				u.log.Error().Err(rerr).Str("account_id", account.ID).Msg("release after failed send")
			}
			u.balancer.Penalize(ctx, account, err)
		}
		return nil, err
	}

	d := &Dispatch{
		Provider: p,
		Account:  account,
		Chunks:   chunks,
		Errs:     errs,
	}
	if account != nil {
		id := account.ID
		d.release = func(ctx context.Context) {
			if rerr := u.balancer.Release(ctx, id); rerr != nil {
				u.log.Error().Err(rerr).Str("account_id", id).Msg("account release failed")
			}
		}
	}
	return d, nil
}

// transportFor resolves the concrete client, walking up to the parent for
// sub-route providers that share the parent's upstream.
func (u *providerUC) transportFor(ctx context.Context, p *model.Provider) (adapter.ProviderTransport, error) {
	if t, ok := u.transports[p.Name]; ok {
		return t, nil
	}
	if p.ParentID != nil {
		parent, err := u.providers.FindByID(ctx, repository.NoTX, *p.ParentID)
		if err == nil {
			if t, ok := u.transports[parent.Name]; ok {
				return t, nil
			}
		}
	}
	return nil, errors.Join(domain.ErrNotFound, errors.New("no transport for provider "+p.Name))
}
