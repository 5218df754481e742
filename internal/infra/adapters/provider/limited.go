package provider

import (
	"context"

	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ProviderTransport = (*limitedTransport)(nil)

// limitedTransport caps concurrent in-flight streams per transport. The slot
// is held until the stream closes, not just until Send returns.
type limitedTransport struct {
	inner adapter.ProviderTransport
	sem   chan struct{}
}

func NewLimitedTransport(inner adapter.ProviderTransport, maxConcurrent int) adapter.ProviderTransport {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedTransport{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedTransport) Name() string { return l.inner.Name() }

func (l *limitedTransport) Send(ctx context.Context, req adapter.GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	chunks, errs, err := l.inner.Send(ctx, req)
	if err != nil {
		<-l.sem
		return nil, nil, err
	}

	outChunks := make(chan model.GenerationChunk)
	outErrs := make(chan error, 1)
	go func() {
		defer func() { <-l.sem }()
		defer close(outChunks)
		defer close(outErrs)
		for chunks != nil || errs != nil {
			select {
			case ch, ok := <-chunks:
				if !ok {
					chunks = nil
					continue
				}
				outChunks <- ch
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				outErrs <- err
			}
		}
	}()
	return outChunks, outErrs, nil
}
