package events

import (
	"context"

	"ai-generation-broker/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier is the default operator-alert channel: structured warn-level
// log lines that on-call tooling scrapes. Best-effort only.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, body string) {
	n.log.Warn().Str("subject", subject).Str("body", body).Msg("operator alert")
}
