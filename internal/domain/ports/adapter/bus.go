package adapter

import "context"

// StopSignal is the payload relayed between sibling processes when a stop is
// requested for a job owned elsewhere.
type StopSignal struct {
	JobID string `json:"job_id"`
}

// SignalBus fans stop requests out to every worker process. Non-owners ignore
// a signal for a job id their local registry does not hold; only the owning
// process acts on it. Publish is fire-and-forget for the caller.
type SignalBus interface {
	PublishStop(ctx context.Context, sig StopSignal) error
	SubscribeStop(ctx context.Context, handler func(sig StopSignal)) error
	Close() error
}
