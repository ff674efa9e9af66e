package domain

import (
	"slices"
	"time"
)

type MessageStatus string

const (
	StatusSent MessageStatus = "sent"
	StatusRead MessageStatus = "read"
)

// FileRef is an opaque reference into the external file subsystem.
// The engine never opens or validates the bytes behind it.
type FileRef struct {
	ID          string
	StoredName  string
	DisplayName string
	MediaType   string
}

// ReactionMap maps an emoji symbol to the set of identities who applied
// it. Membership in each set is unique; an emoji whose last reactor is
// removed disappears from the map entirely.
type ReactionMap map[string][]string

// Add records identity under emoji. Returns false if it already reacted.
func (r ReactionMap) Add(emoji, identity string) bool {
	if slices.Contains(r[emoji], identity) {
		return false
	}
	r[emoji] = append(r[emoji], identity)
	return true
}

// Remove withdraws identity's reaction. The emoji entry is dropped when
// its reactor set becomes empty. Returns false if there was no reaction.
func (r ReactionMap) Remove(emoji, identity string) bool {
	idx := slices.Index(r[emoji], identity)
	if idx < 0 {
		return false
	}
	r[emoji] = slices.Delete(r[emoji], idx, idx+1)
	if len(r[emoji]) == 0 {
		delete(r, emoji)
	}
	return true
}

// Message is one durable chat event. Content is plaintext here; it only
// exists as ciphertext inside the store.
type Message struct {
	ID          uint64
	Sender      string
	Destination Destination
	Content     string
	FileRef     *FileRef
	CreatedAt   time.Time
	Status      MessageStatus
	ReplyTo     *uint64
	Reactions   ReactionMap
}

// IsRecipient reports whether identity is among the message's intended
// recipients. Only direct messages name their reader explicitly; public
// and group messages have no per-identity read state.
func (m Message) IsRecipient(identity string) bool {
	return m.Destination.Kind == DestinationDirect && m.Destination.Identity == identity
}

// CanDelete reports whether requester may remove this message: the
// sender, a direct recipient, or a privileged role.
func (m Message) CanDelete(requester string, privileged bool) bool {
	return privileged || m.Sender == requester || m.IsRecipient(requester)
}

// ReplySummary is the hydrated shape of a referenced message. A dangling
// reference (the target was deleted later) yields an absent summary, not
// an error.
type ReplySummary struct {
	ID      uint64    `json:"id"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	At      time.Time `json:"timestamp"`
}

// FileInfo is the delivered view of a FileRef, with a coarse preview
// kind the client uses to pick a renderer.
type FileInfo struct {
	StoredName  string `json:"stored_name"`
	DisplayName string `json:"display_name"`
	MediaType   string `json:"media_type"`
	Preview     string `json:"preview"`
}

// HydratedMessage is the fully resolved payload emitted to rooms and
// returned by history queries: decrypted content, resolved reply summary
// and file metadata, current reactions.
type HydratedMessage struct {
	ID          uint64        `json:"id"`
	Sender      string        `json:"sender"`
	Destination string        `json:"destination"`
	Content     string        `json:"content"`
	At          time.Time     `json:"timestamp"`
	Status      MessageStatus `json:"status"`
	ReplyTo     *ReplySummary `json:"reply_to,omitempty"`
	File        *FileInfo     `json:"file,omitempty"`
	Reactions   ReactionMap   `json:"reactions"`
	Lang        string        `json:"lang,omitempty"`
}
