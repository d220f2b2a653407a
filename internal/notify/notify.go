package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"workspacechat/internal/services/chat"
)

const TypeMessagePosted = "chat:message_posted"

// MessagePostedPayload is what the notification workers receive. It carries
// references only; workers load whatever else they need.
type MessagePostedPayload struct {
	Scope     chat.Scope       `json:"scope"`
	RoomID    string           `json:"room_id"`
	MessageID string           `json:"message_id"`
	SenderID  string           `json:"sender_id"`
	Type      chat.MessageType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands ingested messages to the notification pipeline.
type Queue struct {
	client enqueuer
	queue  string
}

var _ chat.Notifier = (*Queue)(nil)

func NewQueue(redisAddr string) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		queue:  "notifications",
	}
}

func NewMessagePostedTask(scope chat.Scope, msg *chat.Message) (*asynq.Task, error) {
	payload, err := json.Marshal(MessagePostedPayload{
		Scope:     scope,
		RoomID:    msg.RoomID,
		MessageID: msg.ID,
		SenderID:  msg.Sender.ID,
		Type:      msg.Type,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMessagePosted, payload), nil
}

func (q *Queue) MessagePosted(ctx context.Context, scope chat.Scope, msg *chat.Message) error {
	task, err := NewMessagePostedTask(scope, msg)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.TaskID(msg.ID), // a retried ingest never notifies twice
		asynq.MaxRetry(5),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeMessagePosted, err)
	}
	return nil
}

func (q *Queue) Close() error {
	if c, ok := q.client.(*asynq.Client); ok {
		return c.Close()
	}
	return nil
}
