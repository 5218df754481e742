// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memJobRepo is a small in-memory JobRepository used by unit tests.
type memJobRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.Job
	saveErr error // simulate save failures
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) Patch(ctx context.Context, tx repository.Tx, id string, p repository.JobPatch) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Name != nil {
		j.Name = *p.Name
	}
	if p.TimeoutMs != nil {
		j.TimeoutMs = *p.TimeoutMs
	}
	if p.MJNativeMessageID != nil {
		j.MJNativeMessageID = *p.MJNativeMessageID
	}
	j.UpdatedAt = time.Now()
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *memJobRepo) ListUnfinished(ctx context.Context, tx repository.Tx) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if !j.Status.Terminal() {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memProviderRepo serves a fixed provider graph.
type memProviderRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Provider
}

func newMemProviderRepo(providers ...*model.Provider) *memProviderRepo {
	m := &memProviderRepo{store: make(map[string]*model.Provider)}
	for _, p := range providers {
		cp := *p
		m.store[p.ID] = &cp
	}
	return m
}

func (m *memProviderRepo) Save(ctx context.Context, tx repository.Tx, p *model.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memProviderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProviderRepo) ListEnabledByModel(ctx context.Context, tx repository.Tx, modelName string) ([]*model.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Provider
	for _, p := range m.store {
		if !p.Disabled && p.SupportsModel(modelName) {
			cp := *p
			out = append(out, &cp)
		}
	}
	// stable order for tests
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Order < out[i].Order {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memProviderRepo) SetDisabled(ctx context.Context, tx repository.Tx, id string, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Disabled = disabled
	return nil
}

func (m *memProviderRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Provider
	for _, p := range m.store {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// memAccountRepo mirrors the SQL repo's conditional counter semantics.
type memAccountRepo struct {
	mu    sync.Mutex
	store map[string]*model.PooledAccount
}

func newMemAccountRepo(accounts ...*model.PooledAccount) *memAccountRepo {
	m := &memAccountRepo{store: make(map[string]*model.PooledAccount)}
	for _, a := range accounts {
		cp := *a
		m.store[a.ID] = &cp
	}
	return m
}

func (m *memAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.PooledAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *memAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PooledAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) ListByProvider(ctx context.Context, tx repository.Tx, providerName string) ([]*model.PooledAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PooledAccount
	for _, a := range m.store {
		if a.ProviderName == providerName {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAccountRepo) TryAcquire(ctx context.Context, tx repository.Tx, id string) (*model.PooledAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNoAvailableAccounts
	}
	if a.Status != model.AccountStatusActive {
		return nil, domain.ErrNoAvailableAccounts
	}
	if a.MaxConcurrent > 0 && a.ActiveGenerationCount >= a.MaxConcurrent {
		return nil, domain.ErrNoAvailableAccounts
	}
	a.ActiveGenerationCount++
	a.UsedCount++
	cp := *a
	return &cp, nil
}

func (m *memAccountRepo) ReleaseOne(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if a.ActiveGenerationCount > 0 {
		a.ActiveGenerationCount--
	}
	return nil
}

func (m *memAccountRepo) SetStatus(ctx context.Context, tx repository.Tx, id string, status model.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Status = status
	return nil
}

// memSubscriptionRepo implements the conditional debit in memory.
type memSubscriptionRepo struct {
	mu    sync.Mutex
	subs  map[string]*model.Subscription // by payer id
	txns  []*model.Transaction
	debit error // simulate debit failures
}

func newMemSubscriptionRepo(subs ...*model.Subscription) *memSubscriptionRepo {
	m := &memSubscriptionRepo{subs: make(map[string]*model.Subscription)}
	for _, s := range subs {
		cp := *s
		m.subs[s.PayerID] = &cp
	}
	return m
}

func (m *memSubscriptionRepo) FindByPayer(ctx context.Context, tx repository.Tx, payerID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[payerID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriptionRepo) DebitBalance(ctx context.Context, tx repository.Tx, subscriptionID string, amount int64) (*model.Subscription, error) {
	if m.debit != nil {
		return nil, m.debit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == subscriptionID {
			if s.Balance < amount {
				return nil, domain.ErrInsufficientBalance
			}
			s.Balance -= amount
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubscriptionRepo) SaveTransaction(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.txns = append(m.txns, &cp)
	return nil
}

func (m *memSubscriptionRepo) FindTransactionsByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.txns {
		if t.JobID == jobID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memPricingRepo stores pricing rows keyed by model name.
type memPricingRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ModelPricing
}

func newMemPricingRepo() *memPricingRepo {
	return &memPricingRepo{store: make(map[string]*model.ModelPricing)}
}

func (m *memPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, modelName string) (*model.ModelPricing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[modelName]
	if !ok || !p.Active {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ModelPricing
	for _, p := range m.store {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.store[p.ModelName]; ok && existing.Active {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.store[p.ModelName] = &cp
	return nil
}

func (m *memPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p.ModelName]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.store[p.ModelName] = &cp
	return nil
}

// memTxManager runs the function without a real transaction.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// recordSink captures emitted events in order.
type sinkEvent struct {
	Scope   string
	Event   string
	Payload map[string]any
}

type recordSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordSink) Emit(ctx context.Context, scope, event string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{Scope: scope, Event: event, Payload: payload})
}

func (s *recordSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Event)
	}
	return out
}

func (s *recordSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

// memBus records published stop signals and can feed a subscribed handler.
type memBus struct {
	mu        sync.Mutex
	published []adapter.StopSignal
	handler   func(sig adapter.StopSignal)
}

func (b *memBus) PublishStop(ctx context.Context, sig adapter.StopSignal) error {
	b.mu.Lock()
	b.published = append(b.published, sig)
	h := b.handler
	b.mu.Unlock()
	if h != nil {
		h(sig)
	}
	return nil
}

func (b *memBus) SubscribeStop(ctx context.Context, handler func(sig adapter.StopSignal)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
	return nil
}

func (b *memBus) Close() error { return nil }

type memNotifier struct {
	mu       sync.Mutex
	subjects []string
}

func (n *memNotifier) Notify(ctx context.Context, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subjects = append(n.subjects, subject)
}

// scriptTransport plays back a scripted stream per Send call.
type scriptedSend struct {
	openErr   error                   // fail before the stream opens
	chunks    []model.GenerationChunk // delivered in order, then channel closes
	streamErr error                   // delivered on the error channel after chunks
}

type scriptTransport struct {
	mu    sync.Mutex
	name  string
	sends []scriptedSend
	calls int
}

func (t *scriptTransport) Name() string { return t.name }

func (t *scriptTransport) Send(ctx context.Context, req adapter.GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error) {
	t.mu.Lock()
	idx := t.calls
	t.calls++
	var s scriptedSend
	if idx < len(t.sends) {
		s = t.sends[idx]
	}
	t.mu.Unlock()

	if s.openErr != nil {
		return nil, nil, s.openErr
	}
	chunks := make(chan model.GenerationChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, c := range s.chunks {
			select {
			case chunks <- c:
			case <-ctx.Done():
				return
			}
		}
		if s.streamErr != nil {
			errs <- s.streamErr
		}
	}()
	return chunks, errs, nil
}

type staticCounter struct{ tokens int }

func (c staticCounter) Count(modelName string, messages []adapter.Message) (int, error) {
	return c.tokens, nil
}

// blockingTransport opens a stream that never produces chunks until ctx ends.
type blockingTransport struct {
	name   string
	opened chan struct{} // closed once the stream goroutine is live
}

func newBlockingTransport(name string) *blockingTransport {
	return &blockingTransport{name: name, opened: make(chan struct{})}
}

func (t *blockingTransport) Name() string { return t.name }

func (t *blockingTransport) Send(ctx context.Context, req adapter.GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error) {
	chunks := make(chan model.GenerationChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		close(t.opened)
		<-ctx.Done()
	}()
	return chunks, errs, nil
}
