package ws

import "workspacechat/internal/services/chat"

// Handshake is read once from the upgrade request's query string.
type Handshake struct {
	RoomID   string `form:"room_id"  binding:"required"`
	Identity string `form:"identity" binding:"required"`
}

// fanoutFrame is the Redis payload relayed between instances. Origin lets
// the publishing instance skip a message it already delivered locally.
type fanoutFrame struct {
	Origin  string        `json:"origin"`
	Message *chat.Message `json:"message"`
}
