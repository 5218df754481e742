package provider

import (
	"context"

	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
)

var _ adapter.ProviderTransport = (*NoopTransport)(nil)

// NoopTransport echoes a canned reply with zeroed usage. Used in dev mode so
// the broker can run without upstream credentials.
type NoopTransport struct {
	name string
}

func NewNoopTransport(name string) *NoopTransport {
	if name == "" {
		name = "noop"
	}
	return &NoopTransport{name: name}
}

func (t *NoopTransport) Name() string { return t.name }

func (t *NoopTransport) Send(ctx context.Context, req adapter.GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error) {
	chunks := make(chan model.GenerationChunk, 2)
	errs := make(chan error)
	chunks <- model.GenerationChunk{Provider: t.name, AccountID: req.AccountID, Content: "ok"}
	chunks <- model.GenerationChunk{Provider: t.name, AccountID: req.AccountID, Usage: &model.Usage{}}
	close(chunks)
	close(errs)
	return chunks, errs, nil
}
