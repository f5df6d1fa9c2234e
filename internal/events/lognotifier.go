package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pasar/internal/common"
)

// LogNotifier records emitted events on the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("topic", event.Topic).
		Str("aggregate_id", common.UUIDString(event.AggregateID)).
		RawJSON("payload", event.Payload).
		Msg("domain_event")
	return nil
}
