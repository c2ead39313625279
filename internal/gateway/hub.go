package gateway

import (
	"encoding/json"
	"sync"

	"wasil/internal/types"
)

const (
	RoomAdmins      = "role_admin"
	RoomAdminOrders = "admin_orders"
)

func UserRoom(id types.ID) string   { return "user_" + string(id) }
func DriverRoom(id types.ID) string { return "driver_" + string(id) }
func OrderRoom(id types.ID) string  { return "order_" + string(id) }

// Frame is the wire envelope for every server push and error.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hub tracks room membership and fans frames out to rooms. Delivery is
// best-effort: a client whose send buffer is full misses the frame.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
}

func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

// LeaveAll removes c from every room it joined; called on disconnect.
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends the frame to every member of the given rooms, at most once
// per room per call (duplicate room names are collapsed).
func (h *Hub) Broadcast(rooms []string, f Frame) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}

	seen := make(map[string]struct{}, len(rooms))

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, room := range rooms {
		if _, dup := seen[room]; dup {
			continue
		}
		seen[room] = struct{}{}
		for c := range h.rooms[room] {
			c.enqueue(raw)
		}
	}
}

func (h *Hub) roomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
