package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/events"
)

// LogNotifier writes every emitted event to the structured log. It is
// the always-on sink behind the optional webhook fanout.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements the events.Notifier interface.
func (n LogNotifier) Notify(_ context.Context, event events.Event) error {
	n.Logger.Info().
		Str("event_id", event.ID).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		Time("occurred_at", event.OccurredAt).
		Msg("domain event")
	return nil
}
