// File: internal/infra/events/sink.go
package events

import (
	"context"
	"encoding/json"

	"ai-generation-broker/internal/domain/ports/adapter"
	"ai-generation-broker/internal/infra/redis"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ adapter.EventSink = (*RedisSink)(nil)

// RedisSink publishes lifecycle events on a per-scope pub/sub channel. The
// delivery transport beyond redis (websocket gateway, SSE) subscribes there.
// Emit never fails the caller; publish errors are logged and dropped.
type RedisSink struct {
	client *redis.Client
	log    *zerolog.Logger
}

func NewRedisSink(client *redis.Client, logger *zerolog.Logger) *RedisSink {
	return &RedisSink{client: client, log: logger}
}

type envelope struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func (s *RedisSink) Emit(ctx context.Context, scope, event string, payload map[string]any) {
	b, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("event marshal failed")
		return
	}
	if err := s.client.Publish(ctx, "events:"+scope, b); err != nil {
		s.log.Warn().Err(err).Str("event", event).Str("scope", scope).Msg("event publish failed")
	}
}
