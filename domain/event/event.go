// Package event defines the delivery events fanned out to subscribed
// connections and permanent sinks. Events are immutable snapshots; the
// fanout layer never reaches back into the store.
package event

import (
	"lanshare/domain"
)

// DomainEvent knows which rooms it must be emitted into.
type DomainEvent interface {
	Rooms() []domain.RoomToken
}

// ConnScoped is implemented by events that must skip the connection that
// triggered them (typing indicators in group rooms).
type ConnScoped interface {
	ExcludedConn() string
}

// MessageDelivered is the terminal event of a successful send: the fully
// hydrated payload plus the rooms resolved at persistence time.
type MessageDelivered struct {
	Payload domain.HydratedMessage
	Targets []domain.RoomToken
}

func (e MessageDelivered) Rooms() []domain.RoomToken { return e.Targets }

// SendRejected is scoped to the sender only and terminates the send.
type SendRejected struct {
	Sender string
	Code   string
	Reason string
}

func (e SendRejected) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PersonalRoom(e.Sender)}
}

// ReactionsUpdated carries the complete reaction map after a react or
// unreact, broadcast to everyone like the rest of message state.
type ReactionsUpdated struct {
	MessageID uint64
	Reactions domain.ReactionMap
}

func (e ReactionsUpdated) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PublicRoom}
}

// ReadConfirmed notifies the original sender that Reader marked the
// message read. Emitted at most once per message.
type ReadConfirmed struct {
	MessageID uint64
	Reader    string
	Sender    string
}

func (e ReadConfirmed) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PersonalRoom(e.Sender)}
}

// Typing is ephemeral and never persisted.
type Typing struct {
	From   string
	Room   domain.RoomToken
	Stop   bool
	connID string
}

func NewTyping(from string, room domain.RoomToken, stop bool, connID string) Typing {
	return Typing{From: from, Room: room, Stop: stop, connID: connID}
}

func (e Typing) Rooms() []domain.RoomToken { return []domain.RoomToken{e.Room} }

func (e Typing) ExcludedConn() string { return e.connID }

// PresenceChanged carries the full online list, broadcast on every
// connect and disconnect like the original user_list event.
type PresenceChanged struct {
	Online []string
}

func (e PresenceChanged) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PublicRoom}
}

// GroupCreated announces a new group. Connections whose identity is in
// Members react by subscribing to the group's room.
type GroupCreated struct {
	GroupID string
	Name    string
	Members []string
}

func (e GroupCreated) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PublicRoom}
}

// GroupMembershipChanged is emitted when someone is added to or removed
// from a group, so their live connections can adjust subscriptions.
type GroupMembershipChanged struct {
	GroupID  string
	Identity string
	Added    bool
}

func (e GroupMembershipChanged) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PublicRoom}
}

// GroupDeleted tells every session to drop the group from its UI state.
type GroupDeleted struct {
	GroupID string
}

func (e GroupDeleted) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PublicRoom}
}

// MessageDeleted is broadcast so clients can remove the row locally.
type MessageDeleted struct {
	MessageID uint64
}

func (e MessageDeleted) Rooms() []domain.RoomToken {
	return []domain.RoomToken{domain.PublicRoom}
}
