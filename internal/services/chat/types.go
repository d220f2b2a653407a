package chat

import (
	"context"
	"errors"
	"time"
)

// Scope selects which kind of room a chat core instance serves.
type Scope string

const (
	ScopeProject      Scope = "project"
	ScopeConversation Scope = "conversation"
)

type MessageType string

const (
	TypeText   MessageType = "text"
	TypeFile   MessageType = "file"
	TypeSystem MessageType = "system"
)

var (
	ErrNotFound = errors.New("not found")

	ErrInvalidMessage   = errors.New("invalid message")
	ErrDocumentNotFound = errors.New("document not found")
	ErrSenderNotFound   = errors.New("sender not found")
)

type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Attachment is the outbound form; URL is signed at read time.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// StoredAttachment is what gets persisted alongside a file message.
type StoredAttachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Message is the canonical broadcast form (ServerMessage on the wire).
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	Sender     Identity    `json:"sender"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// ClientMessage is one inbound frame from a connection.
type ClientMessage struct {
	Content    string      `json:"content,omitempty"`
	Type       MessageType `json:"type"                 validate:"required,oneof=text file"`
	DocumentID string      `json:"documentId,omitempty" validate:"required_if=Type file"`
}

// Record is a persisted message row.
type Record struct {
	ID         string
	RoomID     string
	SenderID   string
	Content    string
	Type       MessageType
	Attachment *StoredAttachment
	CreatedAt  time.Time
}

type Document struct {
	ID       string
	Name     string
	Path     string
	FileType string
	Size     int64
}

type MessageStore interface {
	InsertMessage(ctx context.Context, rec *Record) error
	// QueryRecent returns at most limit records, newest first.
	QueryRecent(ctx context.Context, roomID string, limit int) ([]Record, error)
	TouchRoomUpdatedAt(ctx context.Context, roomID string, at time.Time) error
}

type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*Document, error)
}

type ObjectStorage interface {
	SignedDownloadURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

type SenderResolver interface {
	ResolveIdentity(ctx context.Context, id string) (Identity, error)
}

type Notifier interface {
	MessagePosted(ctx context.Context, scope Scope, msg *Message) error
}

// DisplayNameResolver treats the handshake identity as the sender's display
// name. Project chat has no user table behind its senders.
type DisplayNameResolver struct{}

func (DisplayNameResolver) ResolveIdentity(_ context.Context, id string) (Identity, error) {
	if id == "" {
		return Identity{}, ErrNotFound
	}
	return Identity{ID: id, Name: id}, nil
}
