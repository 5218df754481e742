// File: internal/usecase/generation_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// GenerateParams describes one generation request.
type GenerateParams struct {
	PayerID    string
	ChatID     string
	MessageID  string
	Kind       string // job name: text, image, video, speech
	Model      string
	Messages   []adapter.Message
	TimeoutMs  int64
	Stoppable  bool
	PluginCaps int64 // pre-accrued plugin costs (web search, per-request fees)
}

// GenerationResult is the terminal outcome of one job.
type GenerationResult struct {
	Job         model.Job
	Content     string
	Reasoning   string
	Usage       *model.Usage
	Transaction *model.Transaction
	Provider    string
}

// Compile-time check
var _ GenerationUseCase = (*generationUC)(nil)

// GenerationUseCase drives one provider stream through a job instance:
// accumulate partial output, detect terminal usage, debit caps exactly once.
type GenerationUseCase interface {
	Generate(ctx context.Context, params GenerateParams) (*GenerationResult, error)
}

type generationUC struct {
	jobs     JobUseCase
	resolver ProviderUseCase
	balancer BalancerUseCase
	pricing  PricingUseCase
	billing  BillingUseCase
	counter  adapter.TokenCounter
	events   adapter.EventSink
	log      *zerolog.Logger
}

func NewGenerationUseCase(
	jobs JobUseCase,
	resolver ProviderUseCase,
	balancer BalancerUseCase,
	pricing PricingUseCase,
	billing BillingUseCase,
	counter adapter.TokenCounter,
	events adapter.EventSink,
	logger *zerolog.Logger,
) *generationUC {
	return &generationUC{
		jobs:     jobs,
		resolver: resolver,
		balancer: balancer,
		pricing:  pricing,
		billing:  billing,
		counter:  counter,
		events:   events,
		log:      logger,
	}
}

func (g *generationUC) Generate(ctx context.Context, params GenerateParams) (*GenerationResult, error) {
	if params.Model == "" || len(params.Messages) == 0 {
		return nil, domain.ErrInvalidArgument
	}

	// Pricing must be known up front; billing never guesses.
	if _, err := g.pricing.Get(ctx, params.Model); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrPricingNotFound
		}
		return nil, err
	}

	// Pre-flight affordability on estimated prompt tokens.
	promptEstimate, err := g.counter.Count(params.Model, params.Messages)
	if err != nil {
		promptEstimate = 0 // estimation is best-effort
	}
	estCost, err := g.pricing.Cost(ctx, params.Model, model.Usage{PromptTokens: promptEstimate})
	if err != nil {
		return nil, err
	}
	if err := g.billing.CheckAffordable(ctx, params.PayerID, estCost+params.PluginCaps); err != nil {
		return nil, err
	}

	provider, err := g.resolver.Resolve(ctx, params.Model)
	if err != nil {
		return nil, err
	}

	inst, err := g.jobs.Create(ctx, params.Kind, params.ChatID, params.MessageID, params.TimeoutMs)
	if err != nil {
		return nil, err
	}

	genCtx := ctx
	var cancel context.CancelFunc
	if params.TimeoutMs > 0 {
		genCtx, cancel = context.WithTimeout(genCtx, time.Duration(params.TimeoutMs)*time.Millisecond)
	} else {
		genCtx, cancel = context.WithCancel(genCtx)
	}
	defer cancel()

	opts := StartOptions{}
	if params.Stoppable {
		// aborting the stream is exactly cancelling its context
		opts.StopCallback = cancel
	}
	if err := inst.Start(ctx, opts); err != nil {
		return nil, err
	}

	return g.run(ctx, genCtx, inst, provider.ID, params)
}

// run walks the provider chain. A retryable mid-stream failure restarts the
// whole dispatch at the fallback with accumulators reset and no partial
// billing carried over; when every link fails the first error is surfaced.
func (g *generationUC) run(ctx, genCtx context.Context, inst *JobInstance, providerID string, params GenerateParams) (*GenerationResult, error) {
	req := adapter.GenerationRequest{Model: params.Model, Messages: params.Messages}

	var firstErr error
	attempted := make([]string, 0, 2)
	for {
		d, err := g.resolver.DispatchStream(genCtx, providerID, req, attempted...)
		if err != nil {
			if firstErr != nil {
				err = firstErr
			}
			_ = inst.SetError(ctx, err)
			return nil, err
		}

		acc, consumeErr := g.consume(genCtx, inst, d)
		d.Release(ctx)

		if consumeErr == nil {
			return g.finish(ctx, inst, d, acc, params)
		}

		if errors.Is(consumeErr, context.Canceled) || errors.Is(consumeErr, context.DeadlineExceeded) {
			if inst.Job().Status == model.JobStatusStopped {
				return g.finishStopped(ctx, inst, d, acc, params)
			}
			timeoutErr := domain.NewGenerationError(domain.CodeUpstreamTimeout, "generation timed out", consumeErr)
			g.balancer.Penalize(ctx, d.Account, timeoutErr)
			_ = inst.SetError(ctx, timeoutErr)
			return nil, timeoutErr
		}

		g.balancer.Penalize(ctx, d.Account, consumeErr)

		if !domain.IsRetryable(consumeErr) {
			_ = inst.SetError(ctx, consumeErr)
			return nil, consumeErr
		}
		if firstErr == nil {
			firstErr = consumeErr
		}
		g.log.Warn().Err(consumeErr).
			Str("job_id", inst.Job().ID).
			Str("provider", d.Provider.Name).
			Str("model", params.Model).
			Msg("stream failed, restarting dispatch at fallback")

		if d.Provider.FallbackID == nil {
			_ = inst.SetError(ctx, firstErr)
			return nil, firstErr
		}
		attempted = append(attempted, d.Provider.ID)
		providerID = *d.Provider.FallbackID
	}
}

// accumulated is the state gathered from one stream attempt.
type accumulated struct {
	content   strings.Builder
	reasoning strings.Builder
	usage     *model.Usage
	chunks    int
}

// consume drains the stream until the terminal chunk, a failure, or
// cancellation. Intermediate chunks are forwarded to observers, never billed.
func (g *generationUC) consume(genCtx context.Context, inst *JobInstance, d *Dispatch) (*accumulated, error) {
	acc := &accumulated{}
	job := inst.Job()
	lastProgress := job.Progress

	for {
		select {
		case <-genCtx.Done():
			return acc, genCtx.Err()
		case err, ok := <-d.Errs:
			if ok && err != nil {
				return acc, err
			}
			// error channel closed without a value; wait for chunk close
			if !ok {
				d.Errs = nil
			}
		case ch, ok := <-d.Chunks:
			if !ok {
				if acc.usage != nil {
					return acc, nil
				}
				// transports buffer the failure before closing; drain it so the
				// real cause wins over a generic malformed-stream error
				select {
				case err, eok := <-d.Errs:
					if eok && err != nil {
						return acc, err
					}
				default:
				}
				if genCtx.Err() != nil {
					return acc, genCtx.Err()
				}
				return acc, domain.NewGenerationError(domain.CodeMalformedResponse, "stream closed without terminal usage", nil)
			}
			acc.chunks++
			acc.content.WriteString(ch.Content)
			acc.reasoning.WriteString(ch.Reasoning)
			if ch.Usage != nil {
				u := *ch.Usage
				acc.usage = &u
			}
			if ch.Content != "" {
				g.events.Emit(genCtx, job.ChatID, adapter.EventMessageDelta, map[string]any{
					"job_id":  job.ID,
					"content": ch.Content,
				})
			}
			if ch.Usage != nil {
				return acc, nil
			}
			// coarse progress: creep toward 95 until usage arrives
			if p := progressEstimate(acc.chunks); p > lastProgress {
				lastProgress = p
				_ = inst.SetProgress(genCtx, p)
			}
		}
	}
}

// finish bills the terminal usage exactly once, then marks the job done.
func (g *generationUC) finish(ctx context.Context, inst *JobInstance, d *Dispatch, acc *accumulated, params GenerateParams) (*GenerationResult, error) {
	job := inst.Job()
	usage := model.Usage{}
	if acc.usage != nil {
		usage = *acc.usage
	}
	cost, err := g.pricing.Cost(ctx, params.Model, usage)
	if err != nil {
		_ = inst.SetError(ctx, err)
		return nil, err
	}
	total := cost + params.PluginCaps

	txn, sub, err := g.billing.ChargeJob(ctx, params.PayerID, job.ID, total)
	if err != nil {
		_ = inst.SetError(ctx, err)
		return nil, err
	}

	if err := inst.Done(ctx); err != nil {
		return nil, err
	}
	metrics.ObserveGenerationUsage(d.Provider.Name, params.Model,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, total, true)
	if sub != nil {
		g.events.Emit(ctx, job.ChatID, adapter.EventBalanceUpdate, map[string]any{
			"job_id":  job.ID,
			"balance": sub.Balance,
		})
	}

	final := inst.Job()
	return &GenerationResult{
		Job:         final,
		Content:     acc.content.String(),
		Reasoning:   acc.reasoning.String(),
		Usage:       acc.usage,
		Transaction: txn,
		Provider:    d.Provider.Name,
	}, nil
}

// finishStopped handles a user-triggered abort. The partial output survives,
// but caps are debited only when the provider already reported usage before
// the abort; cost is never guessed from output length.
func (g *generationUC) finishStopped(ctx context.Context, inst *JobInstance, d *Dispatch, acc *accumulated, params GenerateParams) (*GenerationResult, error) {
	job := inst.Job()
	var txn *model.Transaction
	if acc.usage != nil {
		cost, err := g.pricing.Cost(ctx, params.Model, *acc.usage)
		if err != nil {
			return nil, err
		}
		t, sub, err := g.billing.ChargeJob(ctx, params.PayerID, job.ID, cost+params.PluginCaps)
		if err != nil {
			return nil, err
		}
		txn = t
		if sub != nil {
			g.events.Emit(ctx, job.ChatID, adapter.EventBalanceUpdate, map[string]any{
				"job_id":  job.ID,
				"balance": sub.Balance,
			})
		}
	}
	metrics.ObserveGenerationUsage(d.Provider.Name, params.Model, 0, 0, 0, 0, false)
	return &GenerationResult{
		Job:         job,
		Content:     acc.content.String(),
		Reasoning:   acc.reasoning.String(),
		Usage:       acc.usage,
		Transaction: txn,
		Provider:    d.Provider.Name,
	}, nil
}

func progressEstimate(chunks int) int {
	p := chunks * 5
	if p > 95 {
		p = 95
	}
	return p
}
