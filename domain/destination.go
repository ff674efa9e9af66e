// Package domain contains core concepts of the messaging engine.
// No runtime, storage, or transport logic should be added here.
package domain

import (
	"fmt"
	"strings"

	"lanshare/errors"
)

// RoomToken is the routing key identifying a delivery scope: the public
// room, one identity's personal channel, or a group channel.
type RoomToken string

const PublicRoom RoomToken = "all"

const groupRoomPrefix = "group-"

func PersonalRoom(identity string) RoomToken {
	return RoomToken(identity)
}

func GroupRoom(groupID string) RoomToken {
	return RoomToken(groupRoomPrefix + groupID)
}

type DestinationKind int

const (
	DestinationPublic DestinationKind = iota
	DestinationDirect
	DestinationGroup
)

// Destination is the caller-specified target of a message. It is parsed
// once at the boundary and carried as a typed value internally, so the
// "group-" string encoding never leaks past ParseDestination.
type Destination struct {
	Kind     DestinationKind
	Identity string // set when Kind == DestinationDirect
	GroupID  string // set when Kind == DestinationGroup
}

func Public() Destination {
	return Destination{Kind: DestinationPublic}
}

func Direct(identity string) Destination {
	return Destination{Kind: DestinationDirect, Identity: identity}
}

func GroupDestination(groupID string) Destination {
	return Destination{Kind: DestinationGroup, GroupID: groupID}
}

// ParseDestination decodes a wire destination token.
// "all" is the public room, "group-<id>" a group channel, anything else
// a single identity.
func ParseDestination(token string) (Destination, error) {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return Destination{}, fmt.Errorf("%w: empty destination", errors.ErrUnknownDestination)
	case token == string(PublicRoom):
		return Public(), nil
	case strings.HasPrefix(token, groupRoomPrefix):
		id := strings.TrimPrefix(token, groupRoomPrefix)
		if id == "" {
			return Destination{}, fmt.Errorf("%w: %q", errors.ErrUnknownDestination, token)
		}
		return GroupDestination(id), nil
	default:
		return Direct(token), nil
	}
}

// Room is the single token a destination is stored under.
func (d Destination) Room() RoomToken {
	switch d.Kind {
	case DestinationDirect:
		return PersonalRoom(d.Identity)
	case DestinationGroup:
		return GroupRoom(d.GroupID)
	default:
		return PublicRoom
	}
}

// ResolveTargets expands a destination into the set of rooms a delivery
// event must be emitted into. Direct messages are echoed into the
// sender's own personal room so their other connected sessions see them
// too. Group echo-to-sender comes for free from room membership and is
// implementation-defined, not guaranteed.
func (d Destination) ResolveTargets(sender string) []RoomToken {
	switch d.Kind {
	case DestinationDirect:
		if d.Identity == sender {
			return []RoomToken{PersonalRoom(sender)}
		}
		return []RoomToken{PersonalRoom(d.Identity), PersonalRoom(sender)}
	case DestinationGroup:
		return []RoomToken{GroupRoom(d.GroupID)}
	default:
		return []RoomToken{PublicRoom}
	}
}
