package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"lanshare/domain"
	"lanshare/domain/event"
)

type nopSink struct{ id string }

func (nopSink) Consume(context.Context, event.DomainEvent) error { return nil }

func TestRegistry_SinksForRoomsDeduplicates(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given one connection in two targeted rooms
	registry.Register("c1", nopSink{id: "c1"})
	registry.Join("c1", domain.PublicRoom)
	registry.Join("c1", domain.PersonalRoom("alice"))

	sinks := registry.SinksForRooms([]domain.RoomToken{domain.PublicRoom, "alice"}, "")
	req.Len(sinks, 1)
}

func TestRegistry_ExcludeConn(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("c1", nopSink{id: "c1"})
	registry.Register("c2", nopSink{id: "c2"})
	registry.Join("c1", domain.PublicRoom)
	registry.Join("c2", domain.PublicRoom)

	sinks := registry.SinksForRooms([]domain.RoomToken{domain.PublicRoom}, "c1")
	req.Len(sinks, 1)
}

func TestRegistry_DropRemovesEverywhere(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("c1", nopSink{id: "c1"})
	registry.Join("c1", domain.PublicRoom)
	registry.Join("c1", domain.GroupRoom("g1"))

	registry.Drop("c1")

	req.Empty(registry.SinksForRooms([]domain.RoomToken{domain.PublicRoom, "group-g1"}, ""))
	rooms, conns := registry.Stats()
	req.Zero(rooms)
	req.Zero(conns)
}

func TestRegistry_LeaveIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	registry.Register("c1", nopSink{id: "c1"})
	registry.Join("c1", domain.PublicRoom)
	registry.Leave("c1", domain.PublicRoom)
	registry.Leave("c1", domain.PublicRoom)
	registry.Leave("c1", "never-joined")

	req.Empty(registry.SinksForRooms([]domain.RoomToken{domain.PublicRoom}, ""))
}

func TestRegistry_UnknownRoomYieldsNoSinks(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.Empty(registry.SinksForRooms([]domain.RoomToken{"ghost"}, ""))
}
