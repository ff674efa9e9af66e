package workers

import (
	"context"
	"log/slog"
	"time"

	"lanshare/contract"
	"lanshare/domain/event"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout delivers domain events to the connections subscribed to
// the event's rooms, plus the permanent sinks attached to the engine
// (search indexing, logging). Fan-out is best effort: a slow or failing
// sink is logged and skipped, never retried, and never blocks others
// past the configured timeout.
type EventFanout struct {
	log            *slog.Logger
	events         chan event.DomainEvent
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewEventFanout(
	log *slog.Logger,
	events chan event.DomainEvent,
	registry contract.IRegistry,
	permanentSinks []contract.EventSink,
	sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		events:         events,
		registry:       registry,
		permanentSinks: permanentSinks,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping fanout")
			return ctx.Err()
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel is closed")
				return nil
			}
			w.fanout(ctx, evt)
		}
	}
}

func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	var exclude string
	if scoped, ok := evt.(event.ConnScoped); ok {
		exclude = scoped.ExcludedConn()
	}

	sinks := w.registry.SinksForRooms(evt.Rooms(), exclude)
	sinks = append(sinks, w.permanentSinks...)

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink rejected event", "error", err)
		}
		cancel()
	}
}
