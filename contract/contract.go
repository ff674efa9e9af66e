//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"lanshare/domain"
	"lanshare/domain/event"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself. Supervision, restart and panic recovery
// are the supervisor's job.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision purposes, avoiding the need for manual
// naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one consumer of delivered events: a live connection, the
// search indexer, or any permanent observer attached to the engine.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry is the room router: it maps room tokens to the connections
// currently subscribed to them. Join and Leave are idempotent. A single
// connection may be subscribed to many rooms at once.
type IRegistry interface {
	Register(connID string, sink EventSink)
	Join(connID string, room domain.RoomToken)
	Leave(connID string, room domain.RoomToken)
	Drop(connID string)
	SinksForRooms(rooms []domain.RoomToken, excludeConn string) []EventSink
}

// IPresence tracks which identities are currently online.
// All operations are idempotent and safe for concurrent use.
type IPresence interface {
	MarkOnline(ctx context.Context, identity string)
	MarkOffline(ctx context.Context, identity string)
	ListOnline() []string
}

// FileStore is the consumed slice of the external file subsystem. The
// engine never opens file bytes; it only asks for removal when the last
// message referencing a file is deleted.
type FileStore interface {
	Remove(ctx context.Context, fileID string) error
}
