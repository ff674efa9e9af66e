package domain

import "time"

type Group struct {
	ID          string
	Name        string
	Description string
	Icon        string
	CreatedBy   string
	CreatedAt   time.Time
	// AdminOnly restricts posting to members flagged admin.
	// Re-evaluated on every send, never cached.
	AdminOnly bool
}

func (g Group) Room() RoomToken {
	return GroupRoom(g.ID)
}

// GroupMember is one (group, identity) membership pair.
type GroupMember struct {
	Identity string
	IsAdmin  bool
	JoinedAt time.Time
}

// GroupInfo is the hydrated view returned to callers: the group, its
// member list, and the caller's own mute state.
type GroupInfo struct {
	Group   Group
	Members []GroupMember
	Muted   bool
}
