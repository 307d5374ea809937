package chat

import (
	"sync"
)

// Rooms tracks ephemeral room membership: room key (session id) -> set of
// connections. This is a separate view of presence from the session
// registry's participant counter; a connection can chat without ever being
// counted, and vice versa. Nothing here is persisted.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[*Connection]struct{}
}

// NewRooms creates an empty room registry.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[*Connection]struct{}),
	}
}

// Join adds a connection to a room. Idempotent.
func (r *Rooms) Join(roomKey string, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[roomKey] == nil {
		r.members[roomKey] = make(map[*Connection]struct{})
	}
	r.members[roomKey][conn] = struct{}{}
}

// Leave removes a connection from a room. Idempotent; empty rooms are
// dropped so the map does not accumulate dead keys.
func (r *Rooms) Leave(roomKey string, conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if set, exists := r.members[roomKey]; exists {
		delete(set, conn)
		if len(set) == 0 {
			delete(r.members, roomKey)
		}
	}
}

// LeaveAll removes a connection from every room it joined. Used when the
// underlying transport disconnects.
func (r *Rooms) LeaveAll(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for roomKey, set := range r.members {
		if _, in := set[conn]; in {
			delete(set, conn)
			if len(set) == 0 {
				delete(r.members, roomKey)
			}
		}
	}
}

// Members returns a snapshot of the room's connections.
func (r *Rooms) Members(roomKey string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.members[roomKey]
	conns := make([]*Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Count returns the number of connections in a room.
func (r *Rooms) Count(roomKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[roomKey])
}

// Stats returns member counts per room.
func (r *Rooms) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int, len(r.members))
	for roomKey, set := range r.members {
		stats[roomKey] = len(set)
	}
	return stats
}
