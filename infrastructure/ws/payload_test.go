package ws

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"lanshare/domain"
	"lanshare/domain/event"
	"lanshare/errors"
)

func TestEncodeEvent_Delivery(t *testing.T) {
	req := require.New(t)

	frame, err := encodeEvent(event.MessageDelivered{
		Payload: domain.HydratedMessage{ID: 7, Sender: "alice", Content: "hello"},
		Targets: []domain.RoomToken{domain.PublicRoom},
	})
	req.NoError(err)
	req.Equal("message", frame.Type)

	var decoded domain.HydratedMessage
	req.NoError(json.Unmarshal(frame.Payload, &decoded))
	req.Equal(uint64(7), decoded.ID)
	req.Equal("hello", decoded.Content)
}

func TestEncodeEvent_FrameTypes(t *testing.T) {
	req := require.New(t)

	cases := []struct {
		evt      event.DomainEvent
		expected string
	}{
		{event.SendRejected{Sender: "alice", Code: "access_denied", Reason: "nope"}, "rejected"},
		{event.ReactionsUpdated{MessageID: 1}, "reactions"},
		{event.ReadConfirmed{MessageID: 1, Reader: "bob", Sender: "alice"}, "read_receipt"},
		{event.NewTyping("alice", domain.PublicRoom, false, "c1"), "typing"},
		{event.PresenceChanged{Online: []string{"alice"}}, "user_list"},
		{event.GroupCreated{GroupID: "g1", Name: "devs"}, "group_created"},
		{event.GroupMembershipChanged{GroupID: "g1", Identity: "bob", Added: true}, "group_membership"},
		{event.GroupDeleted{GroupID: "g1"}, "group_deleted"},
		{event.MessageDeleted{MessageID: 1}, "message_deleted"},
	}
	for _, c := range cases {
		frame, err := encodeEvent(c.evt)
		req.NoError(err)
		req.NotNil(frame)
		req.Equal(c.expected, frame.Type)
	}
}

func TestEncodeEvent_UnknownEventHasNoFrame(t *testing.T) {
	req := require.New(t)

	frame, err := encodeEvent(nil)
	req.NoError(err)
	req.Nil(frame)
}

func TestValidateSendPayload(t *testing.T) {
	req := require.New(t)

	req.NoError(validateSendPayload(sendPayload{Destination: "all", Content: "hello"}))
	req.NoError(validateSendPayload(sendPayload{
		Destination: "bob",
		File:        &domain.FileRef{ID: "f-1"},
	}))

	// Missing destination, empty body, oversized content are all caught
	// before the command reaches the engine
	req.ErrorIs(validateSendPayload(sendPayload{Content: "hello"}), errors.ErrInvalidInput)
	req.ErrorIs(validateSendPayload(sendPayload{Destination: "all"}), errors.ErrInvalidInput)
	req.ErrorIs(validateSendPayload(sendPayload{
		Destination: "all",
		Content:     strings.Repeat("a", 4097),
	}), errors.ErrInvalidInput)
}

func TestEncodeEvent_RejectedPayloadShape(t *testing.T) {
	req := require.New(t)

	frame, err := encodeEvent(event.SendRejected{Sender: "alice", Code: "access_denied", Reason: "admin only"})
	req.NoError(err)

	var decoded rejectedPayload
	req.NoError(json.Unmarshal(frame.Payload, &decoded))
	req.Equal("access_denied", decoded.Code)
	req.Equal("admin only", decoded.Reason)
}
