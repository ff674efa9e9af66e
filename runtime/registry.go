package runtime

import (
	"sync"

	"lanshare/contract"
	"lanshare/domain"
)

type set map[string]struct{}

// Registry is the room router. It maps connection IDs to their sinks
// and room tokens to the set of subscribed connections. A connection
// lives in one place (conns) however many rooms it joins, so dropping
// it is a single delete plus membership cleanup.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]contract.EventSink
	rooms map[domain.RoomToken]set
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]contract.EventSink),
		rooms: make(map[domain.RoomToken]set),
	}
}

func (r *Registry) Register(connID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = sink
}

func (r *Registry) Join(connID string, room domain.RoomToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(set)
	}
	r.rooms[room][connID] = struct{}{}
}

func (r *Registry) Leave(connID string, room domain.RoomToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID string, room domain.RoomToken) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	// Empty rooms are removed so the map doesn't grow with every group
	// ever visited.
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Drop removes the connection and every room membership it holds.
func (r *Registry) Drop(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
	for room := range r.rooms {
		r.leaveLocked(connID, room)
	}
}

// Stats reports current room and connection counts, for the heartbeat.
func (r *Registry) Stats() (rooms, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.conns)
}

// SinksForRooms resolves the live sinks subscribed to any of the given
// rooms. A connection subscribed to several of them is returned once.
// excludeConn, when non empty, is skipped.
func (r *Registry) SinksForRooms(rooms []domain.RoomToken, excludeConn string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(set)
	var sinks []contract.EventSink
	for _, room := range rooms {
		for connID := range r.rooms[room] {
			if connID == excludeConn {
				continue
			}
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			if sink, ok := r.conns[connID]; ok {
				sinks = append(sinks, sink)
			}
		}
	}
	return sinks
}
