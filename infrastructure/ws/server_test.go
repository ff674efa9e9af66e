package ws

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lanshare/domain"
	"lanshare/errors"
)

func TestResolveRoomScope(t *testing.T) {
	req := require.New(t)

	// No room filter passes through untouched
	room, err := resolveRoomScope("alice", "")
	req.NoError(err)
	req.Equal(domain.RoomToken(""), room)

	// Shared rooms are readable by anyone
	room, err = resolveRoomScope("alice", "all")
	req.NoError(err)
	req.Equal(domain.PublicRoom, room)

	room, err = resolveRoomScope("alice", "group-g1")
	req.NoError(err)
	req.Equal(domain.GroupRoom("g1"), room)

	// A caller may read their own personal room
	room, err = resolveRoomScope("alice", "alice")
	req.NoError(err)
	req.Equal(domain.PersonalRoom("alice"), room)
}

func TestResolveRoomScope_RefusesForeignPersonalRoom(t *testing.T) {
	req := require.New(t)

	// bob's personal room holds direct messages alice is not part of
	_, err := resolveRoomScope("alice", "bob")
	req.ErrorIs(err, errors.ErrAccessDenied)
}
