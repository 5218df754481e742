package adapter

import (
	"context"

	"ai-generation-broker/internal/domain/model"
)

// Message represents one prompt message.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// GenerationRequest is the provider-agnostic payload for one generation.
type GenerationRequest struct {
	Model        string
	Messages     []Message
	AccountID    string // pooled account serving the call, empty for keyless providers
	AccountToken string // the reserved account's upstream credential
}

// ProviderTransport is the port for one provider family's concrete client.
// Send returns a channel of chunks; the channel is closed after the terminal
// chunk (Usage set) or after a failure, in which case the error is delivered
// on the error channel. Cancelling ctx aborts the in-flight stream.
type ProviderTransport interface {
	Name() string
	Send(ctx context.Context, req GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error)
}

// TokenCounter estimates prompt tokens before any provider is dialed, for the
// pre-flight affordability check. Best-effort when exact counting is not
// available for a model.
type TokenCounter interface {
	Count(modelName string, messages []Message) (int, error)
}
