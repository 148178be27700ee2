// Package signaling carries the call control and media negotiation protocol
// over websockets. Clients are grouped into named rooms; events are emitted
// to rooms and acknowledgements go straight back to the sender.
package signaling

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

const callRoomPrefix = "call-"

// CallRoom names the room shared by everyone taking part in a call.
func CallRoom(callID string) string { return callRoomPrefix + callID }

// callIDFromRoom reports the call id of a call room.
func callIDFromRoom(room string) (string, bool) {
	if !strings.HasPrefix(room, callRoomPrefix) || len(room) == len(callRoomPrefix) {
		return "", false
	}
	return strings.TrimPrefix(room, callRoomPrefix), true
}

// Hub tracks which clients are in which rooms. All operations are
// thread-safe via sync.RWMutex.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{} // room -> members
	all   map[*Client]struct{}
	log   *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		all:   make(map[*Client]struct{}),
		log:   log,
	}
}

// Register adds a client with no room memberships.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[c] = struct{}{}
}

// Unregister removes the client from every room, closes its send queue and
// returns the rooms it was in. Unregistering twice returns nil.
func (h *Hub) Unregister(c *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return nil
	}
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		h.leaveLocked(c, room)
		rooms = append(rooms, room)
	}
	delete(h.all, c)
	c.close()
	sort.Strings(rooms)
	return rooms
}

// Join is idempotent. Clients that are not registered are ignored.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[c]; !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Rooms lists the client's current rooms in sorted order.
func (h *Hub) Rooms(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

// CallRooms returns the call ids of the call rooms the client is in.
func (h *Hub) CallRooms(c *Client) []string {
	var out []string
	for _, room := range h.Rooms(c) {
		if id, ok := callIDFromRoom(room); ok {
			out = append(out, id)
		}
	}
	return out
}

// Clients returns a snapshot of every registered client.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.all))
	for c := range h.all {
		out = append(out, c)
	}
	return out
}

// InRoom reports whether the client is currently a member of room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Emit sends an event frame to every member of room except skip (which may
// be nil) and returns how many clients accepted it. Members with a full send
// queue are skipped.
func (h *Hub) Emit(room, event string, data any, skip *Client) int {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.log.Error("signaling: encode event failed", "event", event, "room", room, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if c == skip {
			continue
		}
		if c.enqueue(frame) {
			delivered++
			continue
		}
		h.log.Warn("signaling: dropped event for slow client", "event", event, "room", room, "conn_id", c.ID)
	}
	return delivered
}

// RoomSize returns the number of clients currently in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}
