// File: internal/infra/adapters/provider/gemini.go
package provider

import (
	"context"
	"errors"
	"strings"

	"ai-generation-broker/internal/domain"
	"ai-generation-broker/internal/domain/model"
	"ai-generation-broker/internal/domain/ports/adapter"

	"google.golang.org/genai"
)

var _ adapter.ProviderTransport = (*GeminiTransport)(nil)

// GeminiTransport streams generations through the official Gemini SDK.
type GeminiTransport struct {
	name   string
	client *genai.Client
	maxOut int
}

func NewGeminiTransport(ctx context.Context, name, apiKey string, maxOut int) (*GeminiTransport, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "gemini"
	}
	return &GeminiTransport{name: name, client: c, maxOut: maxOut}, nil
}

func (t *GeminiTransport) Name() string { return t.name }

func (t *GeminiTransport) Send(ctx context.Context, req adapter.GenerationRequest) (<-chan model.GenerationChunk, <-chan error, error) {
	if req.Model == "" || len(req.Messages) == 0 {
		return nil, nil, domain.ErrInvalidArgument
	}
	contents := toGenAIContents(req.Messages)
	var cfg *genai.GenerateContentConfig
	if t.maxOut > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: int32(t.maxOut)}
	}

	chunks := make(chan model.GenerationChunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		var usage *model.Usage
		for resp, err := range t.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				errs <- classify(err)
				return
			}
			out := model.GenerationChunk{Provider: t.name, AccountID: req.AccountID}
			if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
				for _, part := range resp.Candidates[0].Content.Parts {
					if part.Thought {
						out.Reasoning += part.Text
					} else {
						out.Content += part.Text
					}
				}
			}
			if resp.UsageMetadata != nil {
				usage = &model.Usage{
					PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
					CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
					TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
				}
			}
			select {
			case chunks <- out:
			case <-ctx.Done():
				return
			}
		}
		// Gemini reports usage on intermediate responses as well; deliver the
		// final totals as the terminal chunk once the stream ends cleanly.
		if usage != nil {
			select {
			case chunks <- model.GenerationChunk{Provider: t.name, AccountID: req.AccountID, Usage: usage}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, errs, nil
}

func toGenAIContents(msgs []adapter.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		switch strings.ToLower(m.Role) {
		case "assistant", "model":
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
