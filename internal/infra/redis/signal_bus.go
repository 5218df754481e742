// File: internal/infra/redis/signal_bus.go
package redis

import (
	"context"
	"encoding/json"

	"ai-generation-broker/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

const stopChannel = "generation:stop"

// Compile-time check
var _ adapter.SignalBus = (*SignalBus)(nil)

// SignalBus relays job-stop requests between sibling worker processes over a
// redis pub/sub channel. Every process subscribes; the one whose registry
// holds the job id acts, the rest ignore the signal.
type SignalBus struct {
	client *Client
	log    *zerolog.Logger
	cancel context.CancelFunc
}

func NewSignalBus(client *Client, logger *zerolog.Logger) *SignalBus {
	return &SignalBus{client: client, log: logger}
}

func (b *SignalBus) PublishStop(ctx context.Context, sig adapter.StopSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return b.client.cli.Publish(ctx, stopChannel, payload).Err()
}

// SubscribeStop starts a goroutine that feeds incoming stop signals to
// handler. The subscription lives until Close or ctx cancellation.
func (b *SignalBus) SubscribeStop(ctx context.Context, handler func(sig adapter.StopSignal)) error {
	subCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	sub := b.client.cli.Subscribe(subCtx, stopChannel)
	// wait for the subscription to be confirmed before returning
	if _, err := sub.Receive(subCtx); err != nil {
		cancel()
		return err
	}

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sig adapter.StopSignal
				if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
					b.log.Warn().Err(err).Msg("malformed stop signal dropped")
					continue
				}
				handler(sig)
			}
		}
	}()
	return nil
}

func (b *SignalBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
