package model

// Usage for a single generation, as reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerationChunk is one unit of a streamed provider response. It is never
// persisted; it lives only for the duration of one streaming call.
// A chunk with Usage != nil is terminal.
type GenerationChunk struct {
	Content   string
	Reasoning string // hidden/thinking content, accumulated but not billed separately
	Usage     *Usage
	Provider  string // provider name that produced the chunk
	AccountID string // pooled account attribution, empty for keyless providers
}

// Terminal reports whether this chunk carries final usage totals.
func (c *GenerationChunk) Terminal() bool { return c.Usage != nil }
