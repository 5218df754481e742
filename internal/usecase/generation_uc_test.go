//go:build !integration

// File: internal/usecase/generation_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
)

// genFixture bundles the full use-case stack over in-memory storage.
type genFixture struct {
	jobs      *memJobRepo
	providers *memProviderRepo
	accounts  *memAccountRepo
	subs      *memSubscriptionRepo
	sink      *recordSink
	jobUC     JobUseCase
	uc        GenerationUseCase
}

// newGenFixture prices "test-model" at 1 cap per prompt token and 2 caps per
// completion token, and funds payer-1 with the given balance.
func newGenFixture(t *testing.T, balance int64, transports map[string]adapter.ProviderTransport, providers ...*model.Provider) *genFixture {
	t.Helper()
	f := &genFixture{
		jobs:      newMemJobRepo(),
		providers: newMemProviderRepo(providers...),
		accounts:  newMemAccountRepo(),
		subs:      newMemSubscriptionRepo(testSubscription("payer-1", balance)),
		sink:      &recordSink{},
	}
	logger := testLogger()
	f.jobUC = NewJobUseCase(f.jobs, f.sink, &memBus{}, logger)
	balancer := NewBalancerUseCase(f.accounts, &memNotifier{}, logger)
	pricingRepo := newMemPricingRepo()
	pricing := NewPricingUseCase(pricingRepo, logger)
	if _, err := pricing.Create(context.Background(), "test-model", 1_000_000, 2_000_000); err != nil {
		t.Fatalf("seed pricing: %v", err)
	}
	billing := NewBillingUseCase(f.subs, memTxManager{}, logger)
	resolver := NewProviderUseCase(f.providers, balancer, transports, logger)
	f.uc = NewGenerationUseCase(f.jobUC, resolver, balancer, pricing, billing, staticCounter{tokens: 10}, f.sink, logger)
	return f
}

func genParams() GenerateParams {
	return GenerateParams{
		PayerID:   "payer-1",
		ChatID:    "chat-1",
		MessageID: "msg-1",
		Kind:      "text",
		Model:     "test-model",
		Messages:  []adapter.Message{{Role: "user", Content: "hello"}},
		Stoppable: true,
	}
}

func TestGenerate_HappyPathBillsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	transports := map[string]adapter.ProviderTransport{
		"alpha": &scriptTransport{name: "alpha", sends: []scriptedSend{{
			chunks: []model.GenerationChunk{
				{Content: "Hel"},
				{Content: "lo"},
				{Usage: &model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
			},
		}}},
	}
	f := newGenFixture(t, 100, transports, chainProvider("A", "alpha", nil))

	res, err := f.uc.Generate(ctx, genParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != "Hello" {
		t.Fatalf("content: %q", res.Content)
	}
	if res.Job.Status != model.JobStatusDone || res.Job.Progress != 100 {
		t.Fatalf("job: %+v", res.Job)
	}
	if res.Provider != "alpha" {
		t.Fatalf("provider attribution: %s", res.Provider)
	}

	// 10 prompt caps + 5*2 completion caps
	if res.Transaction == nil || res.Transaction.Amount != 20 {
		t.Fatalf("transaction: %+v", res.Transaction)
	}
	txns, _ := f.subs.FindTransactionsByJob(ctx, nil, res.Job.ID)
	if len(txns) != 1 {
		t.Fatalf("expected exactly one transaction, got %d", len(txns))
	}
	sub, _ := f.subs.FindByPayer(ctx, nil, "payer-1")
	if sub.Balance != 80 {
		t.Fatalf("balance: %d", sub.Balance)
	}

	if f.sink.count(adapter.EventMessageDelta) != 2 {
		t.Fatalf("delta events: %d", f.sink.count(adapter.EventMessageDelta))
	}
	if f.sink.count(adapter.EventBalanceUpdate) != 1 {
		t.Fatalf("balance events: %d", f.sink.count(adapter.EventBalanceUpdate))
	}
	if _, ok := f.jobUC.Lookup(res.Job.ID); ok {
		t.Fatalf("finished job still registered")
	}
}

func TestGenerate_PreflightInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	transports := map[string]adapter.ProviderTransport{
		"alpha": &scriptTransport{name: "alpha"},
	}
	// counter estimates 10 prompt tokens = 10 caps; balance 5 cannot cover it
	f := newGenFixture(t, 5, transports, chainProvider("A", "alpha", nil))

	_, err := f.uc.Generate(ctx, genParams())
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	// rejected before any job exists
	unfinished, _ := f.jobs.ListUnfinished(ctx, nil)
	if len(unfinished) != 0 {
		t.Fatalf("job persisted despite failed pre-flight")
	}
}

func TestGenerate_UnknownModelFailsBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	f := newGenFixture(t, 100, map[string]adapter.ProviderTransport{}, chainProvider("A", "alpha", nil))

	params := genParams()
	params.Model = "unpriced-model"
	if _, err := f.uc.Generate(ctx, params); !errors.Is(err, domain.ErrPricingNotFound) {
		t.Fatalf("expected ErrPricingNotFound, got %v", err)
	}
}

func TestGenerate_RetryableStreamErrorRestartsAtFallback(t *testing.T) {
	ctx := context.Background()
	transports := map[string]adapter.ProviderTransport{
		"alpha": &scriptTransport{name: "alpha", sends: []scriptedSend{{
			chunks:    []model.GenerationChunk{{Content: "partial from alpha"}},
			streamErr: domain.NewGenerationError(domain.CodeQuotaExhausted, "quota", nil),
		}}},
		"beta": &scriptTransport{name: "beta", sends: []scriptedSend{{
			chunks: []model.GenerationChunk{
				{Content: "from beta"},
				{Usage: &model.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}},
			},
		}}},
	}
	f := newGenFixture(t, 100, transports,
		chainProvider("A", "alpha", strPtr("B")),
		chainProvider("B", "beta", nil),
	)

	res, err := f.uc.Generate(ctx, genParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// the failed attempt's partial output is discarded, not billed
	if res.Content != "from beta" {
		t.Fatalf("content carried over from failed attempt: %q", res.Content)
	}
	if res.Provider != "beta" {
		t.Fatalf("provider: %s", res.Provider)
	}
	txns, _ := f.subs.FindTransactionsByJob(ctx, nil, res.Job.ID)
	if len(txns) != 1 {
		t.Fatalf("expected one transaction after restart, got %d", len(txns))
	}
	if txns[0].Amount != 3 {
		t.Fatalf("amount reflects only the surviving attempt: %d", txns[0].Amount)
	}
}

func TestGenerate_StreamClosedWithoutUsageIsMalformed(t *testing.T) {
	ctx := context.Background()
	transports := map[string]adapter.ProviderTransport{
		"alpha": &scriptTransport{name: "alpha", sends: []scriptedSend{{
			chunks: []model.GenerationChunk{{Content: "trailing off"}},
		}}},
	}
	f := newGenFixture(t, 100, transports, chainProvider("A", "alpha", nil))

	_, err := f.uc.Generate(ctx, genParams())
	if domain.ErrorCode(err) != domain.CodeMalformedResponse {
		t.Fatalf("expected malformed_response, got %v", err)
	}

	unfinished, _ := f.jobs.ListUnfinished(ctx, nil)
	if len(unfinished) != 0 {
		t.Fatalf("errored job left unfinished")
	}
	// no usage was reported, so nothing is billed
	if n := len(f.subs.txns); n != 0 {
		t.Fatalf("billed a malformed stream: %d transactions", n)
	}
}

func TestGenerate_StopBeforeUsageBillsNothing(t *testing.T) {
	ctx := context.Background()
	blocking := newBlockingTransport("alpha")
	transports := map[string]adapter.ProviderTransport{"alpha": blocking}
	f := newGenFixture(t, 100, transports, chainProvider("A", "alpha", nil))

	type outcome struct {
		res *GenerationResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.uc.Generate(ctx, genParams())
		done <- outcome{res, err}
	}()

	select {
	case <-blocking.opened:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream never opened")
	}

	// the pending job is the only unfinished one; stop it mid-stream
	var jobID string
	for i := 0; i < 100; i++ {
		unfinished, _ := f.jobs.ListUnfinished(ctx, nil)
		if len(unfinished) == 1 && unfinished[0].Status == model.JobStatusPending {
			jobID = unfinished[0].ID
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if jobID == "" {
		t.Fatalf("pending job not found")
	}
	if _, err := f.jobUC.Stop(ctx, jobID, StopScopeJob); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var out outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Generate did not return after stop")
	}
	if out.err != nil {
		t.Fatalf("stopped generation returned error: %v", out.err)
	}
	if out.res.Job.Status != model.JobStatusStopped {
		t.Fatalf("job status: %s", out.res.Job.Status)
	}
	if out.res.Transaction != nil {
		t.Fatalf("stop before usage produced a transaction")
	}
	if n := len(f.subs.txns); n != 0 {
		t.Fatalf("caps debited without reported usage: %d transactions", n)
	}
	sub, _ := f.subs.FindByPayer(ctx, nil, "payer-1")
	if sub.Balance != 100 {
		t.Fatalf("balance touched: %d", sub.Balance)
	}
}
