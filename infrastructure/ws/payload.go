package ws

import (
	"encoding/json"

	"lanshare/auth"
	"lanshare/domain"
	"lanshare/domain/event"
)

// Frame is the wire envelope in both directions. Type selects the
// payload shape; unknown types are ignored by both sides.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server payloads.

type sendPayload struct {
	Destination string          `json:"destination"`
	Content     string          `json:"content,omitempty"`
	File        *domain.FileRef `json:"file,omitempty"`
	ReplyTo     *uint64         `json:"reply_to,omitempty"`
}

type typingPayload struct {
	Destination string `json:"destination"`
	Stop        bool   `json:"stop,omitempty"`
}

type reactPayload struct {
	MessageID uint64 `json:"message_id"`
	Emoji     string `json:"emoji"`
}

type markReadPayload struct {
	MessageID uint64 `json:"message_id"`
}

type deletePayload struct {
	MessageID uint64 `json:"message_id"`
}

// Server to client payloads mirror the event types one to one.

type rejectedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type reactionsPayload struct {
	MessageID uint64             `json:"message_id"`
	Reactions domain.ReactionMap `json:"reactions"`
}

type readReceiptPayload struct {
	MessageID uint64 `json:"message_id"`
	Reader    string `json:"reader"`
}

type typingEventPayload struct {
	From string `json:"from"`
	Room string `json:"room"`
	Stop bool   `json:"stop,omitempty"`
}

type userListPayload struct {
	Online []string `json:"online"`
}

type groupCreatedPayload struct {
	GroupID string   `json:"group_id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type groupMembershipPayload struct {
	GroupID  string `json:"group_id"`
	Identity string `json:"identity"`
	Added    bool   `json:"added"`
}

type groupDeletedPayload struct {
	GroupID string `json:"group_id"`
}

type messageDeletedPayload struct {
	MessageID uint64 `json:"message_id"`
}

// validateSendPayload enforces the wire caps on an inbound send before
// it reaches the engine.
func validateSendPayload(p sendPayload) error {
	req := auth.SendRequest{
		Destination: p.Destination,
		Content:     p.Content,
	}
	if p.File != nil {
		req.FileID = p.File.ID
	}
	return auth.ValidateSend(req)
}

// encodeEvent maps a domain event to its outbound frame. A nil return
// means the event has no wire representation for this connection.
func encodeEvent(e event.DomainEvent) (*Frame, error) {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return newFrame("message", evt.Payload)
	case event.SendRejected:
		return newFrame("rejected", rejectedPayload{Code: evt.Code, Reason: evt.Reason})
	case event.ReactionsUpdated:
		return newFrame("reactions", reactionsPayload{MessageID: evt.MessageID, Reactions: evt.Reactions})
	case event.ReadConfirmed:
		return newFrame("read_receipt", readReceiptPayload{MessageID: evt.MessageID, Reader: evt.Reader})
	case event.Typing:
		return newFrame("typing", typingEventPayload{From: evt.From, Room: string(evt.Room), Stop: evt.Stop})
	case event.PresenceChanged:
		return newFrame("user_list", userListPayload{Online: evt.Online})
	case event.GroupCreated:
		return newFrame("group_created", groupCreatedPayload{GroupID: evt.GroupID, Name: evt.Name, Members: evt.Members})
	case event.GroupMembershipChanged:
		return newFrame("group_membership", groupMembershipPayload{GroupID: evt.GroupID, Identity: evt.Identity, Added: evt.Added})
	case event.GroupDeleted:
		return newFrame("group_deleted", groupDeletedPayload{GroupID: evt.GroupID})
	case event.MessageDeleted:
		return newFrame("message_deleted", messageDeletedPayload{MessageID: evt.MessageID})
	default:
		return nil, nil
	}
}

func newFrame(frameType string, payload any) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: frameType, Payload: raw}, nil
}
