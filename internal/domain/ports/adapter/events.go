package adapter

import "context"

// Job lifecycle event names delivered to connected clients.
const (
	EventJobStart    = "JOB_START"
	EventJobProgress = "JOB_PROGRESS"
	EventJobUpdate   = "JOB_UPDATE"
	EventJobError    = "JOB_ERROR"
	EventJobDone     = "JOB_DONE"
	EventJobStop     = "JOB_STOP"
	EventJobDelete   = "JOB_DELETE"
	EventMessageDelta = "MESSAGE_DELTA"
	EventBalanceUpdate = "BALANCE_UPDATE"
)

// EventSink delivers lifecycle notifications to external observers.
// Delivery is fire-and-forget; failures must not affect the generation path.
// Events for a single scope must be delivered in emit order.
type EventSink interface {
	Emit(ctx context.Context, scope, event string, payload map[string]any)
}

// Notifier is best-effort operator alerting (account bans, emergency
// reassignment). Errors are logged by implementations, never surfaced.
type Notifier interface {
	Notify(ctx context.Context, subject, body string)
}
