package ws

import (
	"sync"

	"go.uber.org/zap"

	"workspacechat/internal/metrics"
	"workspacechat/internal/services/chat"
)

// Conn is one client's duplex session as seen by the room registry.
type Conn interface {
	// Send delivers msg to the peer. An error means the peer is gone.
	Send(msg *chat.Message) error
	// ReceiveNext blocks until the next client frame or the end of the
	// stream.
	ReceiveNext() (chat.ClientMessage, error)
	Close() error
}

// Hub keeps the live connection set per room for one chat scope.
type Hub struct {
	scope string
	rooms sync.Map // roomID -> *room
}

func NewHub(scope chat.Scope) *Hub { return &Hub{scope: string(scope)} }

func (h *Hub) Join(roomID string, c Conn) {
	for {
		v, loaded := h.rooms.LoadOrStore(roomID, newRoom())
		r := v.(*room)
		if r.add(c) {
			if !loaded {
				metrics.ChatRooms.WithLabelValues(h.scope).Inc()
			}
			return
		}
		// r emptied and was unlinked between LoadOrStore and add.
	}
}

func (h *Hub) Leave(roomID string, c Conn) {
	v, ok := h.rooms.Load(roomID)
	if !ok {
		return
	}
	r := v.(*room)
	r.remove(c, func() {
		h.rooms.CompareAndDelete(roomID, r)
		metrics.ChatRooms.WithLabelValues(h.scope).Dec()
	})
}

// Broadcast sends msg to every current member of the room, the sender
// included, and evicts members whose send failed.
func (h *Hub) Broadcast(roomID string, msg *chat.Message) {
	v, ok := h.rooms.Load(roomID)
	if !ok {
		return
	}
	failed := v.(*room).broadcast(h.scope, msg)
	for _, c := range failed {
		h.Leave(roomID, c)
		_ = c.Close()
		metrics.Evictions.WithLabelValues(h.scope).Inc()
		zap.L().Debug("ws.evicted", zap.String("scope", h.scope), zap.String("room_id", roomID))
	}
}

// Members returns the live member count of a room, zero when absent.
func (h *Hub) Members(roomID string) int {
	if v, ok := h.rooms.Load(roomID); ok {
		return v.(*room).size()
	}
	return 0
}

// Rooms returns the number of rooms currently present.
func (h *Hub) Rooms() int {
	n := 0
	h.rooms.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll closes every live connection. Each connection task then runs
// its own cleanup, which empties the registry.
func (h *Hub) CloseAll() {
	h.rooms.Range(func(_, v any) bool {
		for _, c := range v.(*room).snapshot() {
			_ = c.Close()
		}
		return true
	})
}
