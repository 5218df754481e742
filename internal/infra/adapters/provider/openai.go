// File: internal/infra/adapters/provider/openai.go
package provider

import (
	"context"
	"errors"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Compile-time assurance this transport satisfies the port
var _ adapter.ProviderTransport = (*OpenAITransport)(nil)

// OpenAITransport streams chat completions through the official SDK.
type OpenAITransport struct {
	name   string
	client openai.Client
}

func NewOpenAITransport(name, apiKey, baseURL string) (*OpenAITransport, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAITransport{name: name, client: openai.NewClient(opts...)}, nil
}

func (t *OpenAITransport) Name() string { return t.name }

func (t *OpenAITransport) Send(ctx context.Context, req adapter.GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error) {
	if req.Model == "" || len(req.Messages) == 0 {
		return nil, nil, domain.ErrInvalidArgument
	}

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	chunks := make(chan model.GenerationChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		// a reserved pool account overrides the transport-level key
		var opts []option.RequestOption
		if req.AccountToken != "" {
			opts = append(opts, option.WithAPIKey(req.AccountToken))
		}
		stream := t.client.Chat.Completions.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		for stream.Next() {
			raw := stream.Current()
			out := model.GenerationChunk{Provider: t.name, AccountID: req.AccountID}
			if len(raw.Choices) > 0 {
				out.Content = raw.Choices[0].Delta.Content
			}
			if raw.JSON.Usage.Valid() {
				out.Usage = &model.Usage{
					PromptTokens:     int(raw.Usage.PromptTokens),
					CompletionTokens: int(raw.Usage.CompletionTokens),
					TotalTokens:      int(raw.Usage.TotalTokens),
				}
			}
			select {
			case chunks <- out:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			errs <- classify(err)
		}
	}()

	return chunks, errs, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
