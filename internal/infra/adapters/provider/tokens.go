// File: internal/infra/adapters/provider/tokens.go
package provider

import (
	"ai-generation-broker/internal/domain/ports/adapter"

	"github.com/pkoukk/tiktoken-go"
)

// Compile-time check
var _ adapter.TokenCounter = (*TiktokenCounter)(nil)

// TiktokenCounter estimates prompt tokens locally, before any provider is
// dialed, for the pre-flight affordability check.
type TiktokenCounter struct{}

func NewTiktokenCounter() *TiktokenCounter { return &TiktokenCounter{} }

func (c *TiktokenCounter) Count(modelName string, messages []adapter.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		// unknown models fall back to the common encoding
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, err
		}
	}
	total := 0
	for _, m := range messages {
		total += len(enc.Encode(m.Content, nil, nil))
		total += 4 // per-message framing overhead
	}
	return total, nil
}
