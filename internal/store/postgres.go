package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"workspacechat/internal/services/chat"
)

// Schema names the tables one chat scope persists into.
type Schema struct {
	MessagesTable string
	RoomColumn    string
	SenderColumn  string
	RoomsTable    string
}

var (
	ProjectSchema = Schema{
		MessagesTable: "project_messages",
		RoomColumn:    "project_id",
		SenderColumn:  "sender",
		RoomsTable:    "projects",
	}
	ConversationSchema = Schema{
		MessagesTable: "messages",
		RoomColumn:    "conversation_id",
		SenderColumn:  "sender_id",
		RoomsTable:    "conversations",
	}
)

func SchemaFor(scope chat.Scope) Schema {
	if scope == chat.ScopeConversation {
		return ConversationSchema
	}
	return ProjectSchema
}

// MessageTable implements chat.MessageStore over one Schema.
type MessageTable struct {
	db *sql.DB

	insertQ string
	recentQ string
	touchQ  string
}

var _ chat.MessageStore = (*MessageTable)(nil)

func NewMessageTable(db *sql.DB, s Schema) *MessageTable {
	return &MessageTable{
		db: db,
		insertQ: fmt.Sprintf(`
		  INSERT INTO %s (id, %s, %s, content, message_type, attachment, created_at)
		       VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.MessagesTable, s.RoomColumn, s.SenderColumn),
		recentQ: fmt.Sprintf(`
		  SELECT id, %s, %s, content, message_type, attachment, created_at
		    FROM %s
		   WHERE %s = $1
		ORDER BY created_at DESC, id DESC
		   LIMIT $2`,
			s.RoomColumn, s.SenderColumn, s.MessagesTable, s.RoomColumn),
		touchQ: fmt.Sprintf(`UPDATE %s SET updated_at = $1 WHERE id = $2`, s.RoomsTable),
	}
}

func (t *MessageTable) InsertMessage(ctx context.Context, rec *chat.Record) error {
	var attachment []byte
	if rec.Attachment != nil {
		var err error
		if attachment, err = json.Marshal(rec.Attachment); err != nil {
			return err
		}
	}
	_, err := t.db.ExecContext(ctx, t.insertQ,
		rec.ID,
		rec.RoomID,
		rec.SenderID,
		rec.Content,
		string(rec.Type),
		nullBytes(attachment),
		rec.CreatedAt,
	)
	return err
}

func (t *MessageTable) QueryRecent(ctx context.Context, roomID string, limit int) ([]chat.Record, error) {
	rows, err := t.db.QueryContext(ctx, t.recentQ, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.Record, 0, limit)
	for rows.Next() {
		var (
			r          chat.Record
			msgType    string
			attachment []byte
		)
		if err := rows.Scan(&r.ID, &r.RoomID, &r.SenderID,
			&r.Content, &msgType, &attachment, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Type = chat.MessageType(msgType)
		if len(attachment) > 0 {
			r.Attachment = &chat.StoredAttachment{}
			if err := json.Unmarshal(attachment, r.Attachment); err != nil {
				return nil, fmt.Errorf("message %s attachment: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *MessageTable) TouchRoomUpdatedAt(ctx context.Context, roomID string, at time.Time) error {
	_, err := t.db.ExecContext(ctx, t.touchQ, at, roomID)
	return err
}

// Documents implements chat.DocumentStore.
type Documents struct {
	db *sql.DB
}

func NewDocuments(db *sql.DB) *Documents { return &Documents{db: db} }

func (d *Documents) GetDocument(ctx context.Context, id string) (*chat.Document, error) {
	const q = `SELECT id, name, path, file_type, size FROM documents WHERE id = $1`
	doc := &chat.Document{}
	err := d.db.QueryRowContext(ctx, q, id).Scan(&doc.ID, &doc.Name, &doc.Path, &doc.FileType, &doc.Size)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, chat.ErrNotFound)
		}
		return nil, err
	}
	return doc, nil
}

// Users implements chat.SenderResolver for conversation chat.
type Users struct {
	db *sql.DB
}

func NewUsers(db *sql.DB) *Users { return &Users{db: db} }

func (u *Users) ResolveIdentity(ctx context.Context, id string) (chat.Identity, error) {
	const q = `SELECT id, name, coalesce(email,''), coalesce(avatar_url,'') FROM users WHERE id = $1`
	var ident chat.Identity
	err := u.db.QueryRowContext(ctx, q, id).Scan(&ident.ID, &ident.Name, &ident.Email, &ident.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Identity{}, fmt.Errorf("user %s: %w", id, chat.ErrNotFound)
		}
		return chat.Identity{}, err
	}
	return ident, nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
