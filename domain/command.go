package domain

import "time"

// Command is an intent flowing from a connection into the broadcast
// engine. Commands for the same room are always handled by the same
// pipeline worker, which is what keeps per-room delivery ordered.
type Command interface {
	Room() RoomToken
}

// SendCommand is a request to post a message. It walks the full
// pipeline: access check, persistence, hydration, delivery.
type SendCommand struct {
	ConnID      string
	Sender      string
	Destination Destination
	Content     string
	FileRef     *FileRef
	ReplyTo     *uint64
	At          time.Time
}

func (c SendCommand) Room() RoomToken {
	return c.Destination.Room()
}

// TypingCommand is ephemeral: routed, never persisted. Stop distinguishes
// the start and end of a typing burst.
type TypingCommand struct {
	ConnID      string
	Sender      string
	Destination Destination
	Stop        bool
}

func (c TypingCommand) Room() RoomToken {
	return c.Destination.Room()
}
