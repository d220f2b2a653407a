package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"workspacechat/internal/services/chat"
)

// Fanout relays ingested messages to the other instances serving the same
// rooms. Local delivery never depends on it.
type Fanout interface {
	Publish(ctx context.Context, roomID string, msg *chat.Message) error
	Subscribe(roomID string)
	Unsubscribe(roomID string)
}

type nopFanout struct{}

func (nopFanout) Publish(context.Context, string, *chat.Message) error { return nil }
func (nopFanout) Subscribe(string)                                     {}
func (nopFanout) Unsubscribe(string)                                   {}

// NopFanout is used when the process runs as a single instance.
func NopFanout() Fanout { return nopFanout{} }

type RedisFanout struct {
	rdb    *redis.Client
	hub    *Hub
	scope  chat.Scope
	origin string
	subMgr *subscriptionManager
}

var _ Fanout = (*RedisFanout)(nil)

func NewRedisFanout(rdb *redis.Client, hub *Hub, scope chat.Scope) *RedisFanout {
	f := &RedisFanout{
		rdb:    rdb,
		hub:    hub,
		scope:  scope,
		origin: uuid.NewString(),
	}
	f.subMgr = newSubscriptionManager(f.listen)
	return f
}

func channelName(scope chat.Scope, roomID string) string {
	return fmt.Sprintf("chat:%s:%s:messages", scope, roomID)
}

func (f *RedisFanout) encode(msg *chat.Message) ([]byte, error) {
	return json.Marshal(fanoutFrame{Origin: f.origin, Message: msg})
}

func (f *RedisFanout) Publish(ctx context.Context, roomID string, msg *chat.Message) error {
	payload, err := f.encode(msg)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, channelName(f.scope, roomID), payload).Err()
}

func (f *RedisFanout) Subscribe(roomID string)   { f.subMgr.Subscribe(roomID) }
func (f *RedisFanout) Unsubscribe(roomID string) { f.subMgr.Unsubscribe(roomID) }

func (f *RedisFanout) listen(ctx context.Context, roomID string) {
	ps := f.rdb.Subscribe(ctx, channelName(f.scope, roomID))
	defer ps.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ps.Channel():
			if !ok { // Redis connection closed.
				return
			}
			f.deliver(roomID, m.Payload)
		}
	}
}

// deliver hands a remote frame to the local hub.
func (f *RedisFanout) deliver(roomID, payload string) {
	var frame fanoutFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil || frame.Message == nil {
		zap.L().Warn("ws.fanout_decode", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	if frame.Origin == f.origin {
		return
	}
	f.hub.Broadcast(roomID, frame.Message)
}
