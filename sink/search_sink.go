package sink

import (
	"context"
	"log/slog"

	"lanshare/domain/event"
	"lanshare/repositories"
)

// SearchSink mirrors delivered messages into the full text index and
// keeps it consistent when messages are removed. It is a permanent sink
// attached to the engine, downstream of persistence, so everything it
// indexes is already durable.
type SearchSink struct {
	search repositories.ISearchRepository
	log    *slog.Logger
}

func NewSearchSink(search repositories.ISearchRepository, log *slog.Logger) *SearchSink {
	return &SearchSink{search: search, log: log}
}

func (s *SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return s.search.Index(evt.Payload)
	case event.MessageDeleted:
		return s.search.Remove(evt.MessageID)
	default:
		return nil
	}
}
