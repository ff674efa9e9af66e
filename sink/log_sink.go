package sink

import (
	"context"
	"log/slog"

	"lanshare/domain/event"
)

// LogSink traces the event stream for debugging. Attached permanently
// in debug deployments, harmless elsewhere.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageDelivered:
		s.log.Debug("Delivered", "id", evt.Payload.ID, "sender", evt.Payload.Sender, "rooms", len(evt.Targets))
	case event.SendRejected:
		s.log.Debug("Rejected", "sender", evt.Sender, "code", evt.Code)
	case event.PresenceChanged:
		s.log.Debug("Presence", "online", len(evt.Online))
	default:
		s.log.Debug("Event", "rooms", evt.Rooms())
	}
	return nil
}
