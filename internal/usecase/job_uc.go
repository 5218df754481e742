// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"sync"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/domain/ports/repository"
	"ai-generation-broker/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// StopScope selects how far a stop request travels.
type StopScope string

const (
	// StopScopeProcess relays the request to whichever process owns the job.
	StopScopeProcess StopScope = "process"
	// StopScopeJob stops a job owned by the local registry.
	StopScopeJob StopScope = "job"
)

// StartOptions configures one job start. A nil StopCallback means the job
// cannot be interrupted mid-flight and Stop becomes a no-op for it.
type StartOptions struct {
	StopCallback func()
	OnError      func(err error)
}

// Compile-time check
var _ JobUseCase = (*jobUC)(nil)

type JobUseCase interface {
	Create(ctx context.Context, name, chatID, messageID string, timeoutMs int64) (*JobInstance, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	// Stop stops a job. With StopScopeProcess the request is relayed through
	// the signal bus when the job is not owned locally; the call returns
	// immediately with the job's current persisted state.
	Stop(ctx context.Context, jobID string, scope StopScope) (*model.Job, error)
	// Lookup returns the locally registered instance, if any.
	Lookup(jobID string) (*JobInstance, bool)
	// Delete removes the persisted record; a locally owned job is also
	// unregistered.
	Delete(ctx context.Context, jobID string) error
	// HandleStopSignal is wired to the signal bus subscription. Signals for
	// jobs this process does not own are ignored.
	HandleStopSignal(sig adapter.StopSignal)
}

type jobUC struct {
	jobs   repository.JobRepository
	events adapter.EventSink
	bus    adapter.SignalBus
	reg    *Registry
	log    *zerolog.Logger
}

func NewJobUseCase(jobs repository.JobRepository, events adapter.EventSink, bus adapter.SignalBus, logger *zerolog.Logger) *jobUC {
	return &jobUC{
		jobs:   jobs,
		events: events,
		bus:    bus,
		reg:    NewRegistry(),
		log:    logger,
	}
}

// Registry maps job id to the instance owned by this process. An id is
// present iff the job is pending and was started here; every terminal
// transition removes its entry exactly once.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*JobInstance
}

func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*JobInstance)}
}

func (r *Registry) add(inst *JobInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.job.ID] = inst
}

// remove is idempotent: the first call for an id reports true, later ones false.
func (r *Registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return false
	}
	delete(r.instances, id)
	return true
}

func (r *Registry) get(id string) (*JobInstance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Len reports how many jobs this process currently owns.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

func (u *jobUC) Create(ctx context.Context, name, chatID, messageID string, timeoutMs int64) (*JobInstance, error) {
	job, err := model.NewJob(name, chatID, messageID, timeoutMs)
	if err != nil {
		return nil, err
	}
	if err := u.jobs.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	return &JobInstance{uc: u, job: job}, nil
}

func (u *jobUC) Get(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, repository.NoTX, id)
}

func (u *jobUC) Lookup(jobID string) (*JobInstance, bool) {
	return u.reg.get(jobID)
}

func (u *jobUC) Stop(ctx context.Context, jobID string, scope StopScope) (*model.Job, error) {
	if inst, ok := u.reg.get(jobID); ok {
		return inst.Stop(ctx)
	}
	if scope == StopScopeProcess {
		// Not ours; relay to the owning process and return the current state.
		if err := u.bus.PublishStop(ctx, adapter.StopSignal{JobID: jobID}); err != nil {
			u.log.Warn().Err(err).Str("job_id", jobID).Msg("stop relay failed")
		}
		return u.jobs.FindByID(ctx, repository.NoTX, jobID)
	}
	return u.jobs.FindByID(ctx, repository.NoTX, jobID)
}

func (u *jobUC) Delete(ctx context.Context, jobID string) error {
	if inst, ok := u.reg.get(jobID); ok {
		return inst.Delete(ctx)
	}
	job, err := u.jobs.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if err := u.jobs.Delete(ctx, repository.NoTX, jobID); err != nil {
		return err
	}
	scope := job.ChatID
	if scope == "" {
		scope = job.ID
	}
	u.events.Emit(ctx, scope, adapter.EventJobDelete, map[string]any{"job_id": jobID})
	return nil
}

func (u *jobUC) HandleStopSignal(sig adapter.StopSignal) {
	inst, ok := u.reg.get(sig.JobID)
	if !ok {
		return // some other process owns it
	}
	if _, err := inst.Stop(context.Background()); err != nil {
		u.log.Error().Err(err).Str("job_id", sig.JobID).Msg("relayed stop failed")
	}
}

// JobInstance wraps a persisted job with in-process cancellation capability.
// It is owned exclusively by the registry of the process that started it.
type JobInstance struct {
	mu           sync.Mutex
	uc           *jobUC
	job          *model.Job
	stopCallback func()
	onError      func(err error)
	removed      bool
	deleted      bool
}

// Job returns a copy of the wrapped job record.
func (i *JobInstance) Job() model.Job {
	i.mu.Lock()
	defer i.mu.Unlock()
	return *i.job
}

// Start transitions created -> pending and registers the instance locally.
func (i *JobInstance) Start(ctx context.Context, opts StartOptions) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.job.Status != model.JobStatusCreated {
		return domain.ErrJobNotPending
	}
	i.stopCallback = opts.StopCallback
	i.onError = opts.OnError
	i.job.Status = model.JobStatusPending
	i.job.IsStopAllowed = opts.StopCallback != nil
	if err := i.uc.jobs.Save(ctx, repository.NoTX, i.job); err != nil {
		return err
	}
	i.uc.reg.add(i)
	i.emit(ctx, adapter.EventJobStart, map[string]any{
		"job_id":          i.job.ID,
		"name":            i.job.Name,
		"is_stop_allowed": i.job.IsStopAllowed,
	})
	return nil
}

// SetProgress persists progress without changing state.
func (i *JobInstance) SetProgress(ctx context.Context, percent int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.job.Status != model.JobStatusPending {
		return domain.ErrJobNotPending
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	i.job.Progress = percent
	if err := i.uc.jobs.Save(ctx, repository.NoTX, i.job); err != nil {
		return err
	}
	i.emit(ctx, adapter.EventJobProgress, map[string]any{
		"job_id":   i.job.ID,
		"progress": percent,
	})
	return nil
}

// Stop invokes the stop callback synchronously, aborting the in-flight
// stream, then transitions to stopped. Without a callback it is a no-op and
// returns the unchanged job.
func (i *JobInstance) Stop(ctx context.Context) (*model.Job, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.job.Status.Terminal() {
		cp := *i.job
		return &cp, nil
	}
	if i.stopCallback == nil {
		cp := *i.job
		return &cp, nil
	}
	i.stopCallback()
	i.job.Status = model.JobStatusStopped
	if err := i.uc.jobs.Save(ctx, repository.NoTX, i.job); err != nil {
		return nil, err
	}
	metrics.IncJobTerminal(string(model.JobStatusStopped))
	i.emit(ctx, adapter.EventJobStop, map[string]any{"job_id": i.job.ID})
	i.removeOnce()
	cp := *i.job
	return &cp, nil
}

// SetError normalizes err, transitions to error and unregisters the job.
func (i *JobInstance) SetError(ctx context.Context, jobErr error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.job.Status.Terminal() {
		return nil
	}
	i.job.Status = model.JobStatusError
	i.job.Error = jobErr.Error()
	i.job.ErrorCode = domain.ErrorCode(jobErr)
	payload := map[string]any{
		"job_id":     i.job.ID,
		"error":      i.job.Error,
		"error_code": i.job.ErrorCode,
	}
	if ge, ok := domain.AsGenerationError(jobErr); ok && ge.RemainingTimeout > 0 {
		payload["remaining_timeout"] = ge.RemainingTimeout
	}
	if err := i.uc.jobs.Save(ctx, repository.NoTX, i.job); err != nil {
		return err
	}
	metrics.IncJobTerminal(string(model.JobStatusError))
	i.emit(ctx, adapter.EventJobError, payload)
	if i.onError != nil {
		i.onError(jobErr)
	}
	i.removeOnce()
	return nil
}

// Done sets progress to 100 and transitions to done.
func (i *JobInstance) Done(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.job.Status.Terminal() {
		return nil
	}
	i.job.Progress = 100
	i.job.Status = model.JobStatusDone
	if err := i.uc.jobs.Save(ctx, repository.NoTX, i.job); err != nil {
		return err
	}
	metrics.IncJobTerminal(string(model.JobStatusDone))
	i.emit(ctx, adapter.EventJobDone, map[string]any{"job_id": i.job.ID})
	i.removeOnce()
	return nil
}

// Update patches persisted fields without changing state and re-notifies
// observers with the changed fields only.
func (i *JobInstance) Update(ctx context.Context, patch repository.JobPatch) (*model.Job, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	updated, err := i.uc.jobs.Patch(ctx, repository.NoTX, i.job.ID, patch)
	if err != nil {
		return nil, err
	}
	updated.Status = i.job.Status
	updated.Progress = i.job.Progress
	i.job = updated
	changed := map[string]any{"job_id": i.job.ID}
	if patch.Name != nil {
		changed["name"] = *patch.Name
	}
	if patch.TimeoutMs != nil {
		changed["timeout"] = *patch.TimeoutMs
	}
	if patch.MJNativeMessageID != nil {
		changed["mj_native_message_id"] = *patch.MJNativeMessageID
	}
	i.emit(ctx, adapter.EventJobUpdate, changed)
	cp := *i.job
	return &cp, nil
}

// Delete removes the persisted job and the registry entry. A second call is
// a no-op.
func (i *JobInstance) Delete(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.deleted {
		return nil
	}
	if err := i.uc.jobs.Delete(ctx, repository.NoTX, i.job.ID); err != nil {
		return err
	}
	i.deleted = true
	i.emit(ctx, adapter.EventJobDelete, map[string]any{"job_id": i.job.ID})
	i.removeOnce()
	return nil
}

// removeOnce unregisters the instance; guarded so every terminal path can
// call it without a double removal. Caller holds i.mu.
func (i *JobInstance) removeOnce() {
	if i.removed {
		return
	}
	i.removed = true
	i.uc.reg.remove(i.job.ID)
}

func (i *JobInstance) emit(ctx context.Context, event string, payload map[string]any) {
	scope := i.job.ChatID
	if scope == "" {
		scope = i.job.ID
	}
	i.uc.events.Emit(ctx, scope, event, payload)
}
