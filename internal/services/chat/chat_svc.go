package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"workspacechat/internal/metrics"
)

const DefaultBackfillLimit = 50

type IChatService interface {
	Scope() Scope
	// Ingest validates, persists and returns the broadcast form of one
	// client message. A nil message is never returned without an error.
	Ingest(ctx context.Context, roomID, senderID string, in ClientMessage) (*Message, error)
	// LoadRecent returns up to limit most recent messages, oldest first.
	LoadRecent(ctx context.Context, roomID string, limit int) ([]Message, error)
}

type Deps struct {
	Messages  MessageStore
	Documents DocumentStore
	Storage   ObjectStorage
	Senders   SenderResolver
	Notifier  Notifier // optional
	URLTTL    time.Duration
}

type chatService struct {
	scope     Scope
	messages  MessageStore
	documents DocumentStore
	storage   ObjectStorage
	senders   SenderResolver
	notifier  Notifier
	urlTTL    time.Duration
	validate  *validator.Validate

	now   func() time.Time
	newID func() string
}

var _ IChatService = (*chatService)(nil)

func NewChatService(scope Scope, deps Deps) IChatService {
	ttl := deps.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &chatService{
		scope:     scope,
		messages:  deps.Messages,
		documents: deps.Documents,
		storage:   deps.Storage,
		senders:   deps.Senders,
		notifier:  deps.Notifier,
		urlTTL:    ttl,
		validate:  validator.New(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (svc *chatService) Scope() Scope { return svc.scope }

func (svc *chatService) Ingest(ctx context.Context, roomID, senderID string, in ClientMessage) (*Message, error) {
	if err := svc.validate.Struct(in); err != nil {
		svc.dropped("invalid")
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	sender, err := svc.senders.ResolveIdentity(ctx, senderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			svc.dropped("unknown_sender")
			return nil, ErrSenderNotFound
		}
		svc.dropped("sender_lookup")
		return nil, fmt.Errorf("resolve sender %s: %w", senderID, err)
	}

	rec := &Record{
		RoomID:   roomID,
		SenderID: sender.ID,
		Type:     in.Type,
		Content:  in.Content,
	}

	if in.Type == TypeFile {
		doc, err := svc.documents.GetDocument(ctx, in.DocumentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				svc.dropped("unknown_document")
				return nil, ErrDocumentNotFound
			}
			svc.dropped("document_lookup")
			return nil, fmt.Errorf("get document %s: %w", in.DocumentID, err)
		}
		rec.Attachment = &StoredAttachment{
			Name: doc.Name,
			Path: doc.Path,
			Size: doc.Size,
			Type: doc.FileType,
		}
	}

	rec.ID = svc.newID()
	// Postgres keeps microseconds; live and replayed copies must agree.
	rec.CreatedAt = svc.now().UTC().Truncate(time.Microsecond)
	if err := svc.messages.InsertMessage(ctx, rec); err != nil {
		svc.dropped("persistence")
		return nil, fmt.Errorf("insert message: %w", err)
	}
	metrics.MessagesIngested.WithLabelValues(string(svc.scope), string(rec.Type)).Inc()

	// The message is already persisted; a stale watermark is not worth
	// withholding the broadcast for.
	if err := svc.messages.TouchRoomUpdatedAt(ctx, roomID, rec.CreatedAt); err != nil {
		zap.L().Warn("chat.touch_room",
			zap.String("scope", string(svc.scope)),
			zap.String("room_id", roomID),
			zap.Error(err))
	}

	msg := svc.toMessage(ctx, rec, sender)

	if svc.notifier != nil {
		if err := svc.notifier.MessagePosted(ctx, svc.scope, msg); err != nil {
			zap.L().Warn("chat.notify", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}
	return msg, nil
}

func (svc *chatService) LoadRecent(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > DefaultBackfillLimit {
		limit = DefaultBackfillLimit
	}

	recs, err := svc.messages.QueryRecent(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}

	senders := make(map[string]Identity)
	out := make([]Message, 0, len(recs))
	// newest first from the store, replayed oldest first
	for i := len(recs) - 1; i >= 0; i-- {
		rec := &recs[i]
		sender, ok := senders[rec.SenderID]
		if !ok {
			sender = svc.historicSender(ctx, rec.SenderID)
			senders[rec.SenderID] = sender
		}
		out = append(out, *svc.toMessage(ctx, rec, sender))
	}
	return out, nil
}

// historicSender never fails: a sender deleted since posting still shows
// up under its raw id.
func (svc *chatService) historicSender(ctx context.Context, id string) Identity {
	sender, err := svc.senders.ResolveIdentity(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.L().Warn("chat.resolve_sender", zap.String("sender_id", id), zap.Error(err))
		}
		return Identity{ID: id, Name: id}
	}
	return sender
}

func (svc *chatService) toMessage(ctx context.Context, rec *Record, sender Identity) *Message {
	msg := &Message{
		ID:        rec.ID,
		RoomID:    rec.RoomID,
		Sender:    sender,
		Content:   rec.Content,
		Type:      rec.Type,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Type == TypeFile && rec.Attachment != nil {
		msg.Attachment = &Attachment{
			Name: rec.Attachment.Name,
			Size: rec.Attachment.Size,
			Type: rec.Attachment.Type,
		}
		url, err := svc.storage.SignedDownloadURL(ctx, rec.Attachment.Path, svc.urlTTL)
		if err != nil {
			zap.L().Warn("chat.sign_url",
				zap.String("message_id", rec.ID),
				zap.String("path", rec.Attachment.Path),
				zap.Error(err))
		}
		msg.Attachment.URL = url
	}
	return msg
}

func (svc *chatService) dropped(reason string) {
	metrics.MessagesDropped.WithLabelValues(string(svc.scope), reason).Inc()
}

// SystemNotice builds an unpersisted system message addressed to one
// connection, e.g. to tell a sender its message was rejected.
func SystemNotice(roomID, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Sender:    Identity{ID: "system", Name: "system"},
		Content:   content,
		Type:      TypeSystem,
		CreatedAt: time.Now().UTC(),
	}
}
