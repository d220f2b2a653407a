package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memMessages struct {
	mu       sync.Mutex
	rows     []Record
	touched  map[string]time.Time
	failNext error
}

func newMemMessages() *memMessages {
	return &memMessages{touched: map[string]time.Time{}}
}

func (m *memMessages) InsertMessage(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.rows = append(m.rows, *rec)
	return nil
}

func (m *memMessages) QueryRecent(_ context.Context, roomID string, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.rows {
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMessages) TouchRoomUpdatedAt(_ context.Context, roomID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[roomID] = at
	return nil
}

type memDocuments map[string]Document

func (d memDocuments) GetDocument(_ context.Context, id string) (*Document, error) {
	doc, ok := d[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &doc, nil
}

// countingStorage hands out a different URL on every call.
type countingStorage struct {
	mu sync.Mutex
	n  int
}

func (s *countingStorage) SignedDownloadURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("https://files.test/%s?ttl=%d&sig=%d", path, int(ttl.Seconds()), s.n), nil
}

type mapResolver map[string]Identity

func (r mapResolver) ResolveIdentity(_ context.Context, id string) (Identity, error) {
	ident, ok := r[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return ident, nil
}

type recordingNotifier struct {
	posted []*Message
}

func (n *recordingNotifier) MessagePosted(_ context.Context, _ Scope, msg *Message) error {
	n.posted = append(n.posted, msg)
	return nil
}

type fixture struct {
	svc      *chatService
	messages *memMessages
	storage  *countingStorage
	notifier *recordingNotifier
	clock    time.Time
}

func newFixture(t *testing.T, senders SenderResolver) *fixture {
	t.Helper()
	f := &fixture{
		messages: newMemMessages(),
		storage:  &countingStorage{},
		notifier: &recordingNotifier{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	svc := NewChatService(ScopeProject, Deps{
		Messages: f.messages,
		Documents: memDocuments{
			"doc-1": {ID: "doc-1", Name: "plan.pdf", Path: "p1/plan.pdf", FileType: "application/pdf", Size: 2048},
		},
		Storage:  f.storage,
		Senders:  senders,
		Notifier: f.notifier,
		URLTTL:   15 * time.Minute,
	}).(*chatService)
	svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	f.svc = svc
	return f
}

func TestIngestText(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeText, Content: "hi"})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "p1", msg.RoomID)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, TypeText, msg.Type)
	assert.Equal(t, "alice", msg.Sender.Name)
	assert.Nil(t, msg.Attachment)

	require.Len(t, f.messages.rows, 1)
	assert.Equal(t, msg.ID, f.messages.rows[0].ID)
	assert.Equal(t, msg.CreatedAt, f.messages.touched["p1"])
	require.Len(t, f.notifier.posted, 1)
}

func TestIngestStampsMicrosecondPrecision(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})
	at := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	f.svc.now = func() time.Time { return at }

	msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeText, Content: "hi"})
	require.NoError(t, err)

	want := time.Date(2026, 3, 4, 5, 6, 7, 123456000, time.UTC)
	assert.Equal(t, want, msg.CreatedAt)
	assert.Equal(t, want, f.messages.rows[0].CreatedAt)
}

func TestIngestTextWithoutContentPersistsEmptyString(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeText})
	require.NoError(t, err)
	assert.Equal(t, "", msg.Content)
	require.Len(t, f.messages.rows, 1)
}

func TestIngestAssignsUniqueIDs(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeText, Content: "x"})
		require.NoError(t, err)
		assert.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
}

func TestIngestFile(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeFile, DocumentID: "doc-1"})
	require.NoError(t, err)

	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "plan.pdf", msg.Attachment.Name)
	assert.Equal(t, int64(2048), msg.Attachment.Size)
	assert.Equal(t, "application/pdf", msg.Attachment.Type)
	assert.Contains(t, msg.Attachment.URL, "p1/plan.pdf")
	assert.Contains(t, msg.Attachment.URL, "ttl=900")

	// only the path is persisted, never the signed URL
	require.Len(t, f.messages.rows, 1)
	stored := f.messages.rows[0].Attachment
	require.NotNil(t, stored)
	assert.Equal(t, "p1/plan.pdf", stored.Path)
}

func TestIngestFileWithUnknownDocumentIsDropped(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeFile, DocumentID: "missing-doc"})
	require.ErrorIs(t, err, ErrDocumentNotFound)
	assert.Nil(t, msg)
	assert.Empty(t, f.messages.rows)
	assert.Empty(t, f.notifier.posted)
}

func TestIngestFileWithoutDocumentIDIsInvalid(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	_, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeFile})
	require.ErrorIs(t, err, ErrInvalidMessage)
	assert.Empty(t, f.messages.rows)
}

func TestIngestRejectsUnknownType(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	_, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: "system", Content: "spoof"})
	require.ErrorIs(t, err, ErrInvalidMessage)
	assert.Empty(t, f.messages.rows)
}

func TestIngestUnknownSenderIsDropped(t *testing.T) {
	f := newFixture(t, mapResolver{"u1": {ID: "u1", Name: "Ada"}})

	_, err := f.svc.Ingest(context.Background(), "c1", "ghost", ClientMessage{Type: TypeText, Content: "boo"})
	require.ErrorIs(t, err, ErrSenderNotFound)
	assert.Empty(t, f.messages.rows)

	msg, err := f.svc.Ingest(context.Background(), "c1", "u1", ClientMessage{Type: TypeText, Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "u1", Name: "Ada"}, msg.Sender)
}

func TestIngestPersistenceFailureAborts(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})
	f.messages.failNext = errors.New("db down")

	msg, err := f.svc.Ingest(context.Background(), "p1", "alice", ClientMessage{Type: TypeText, Content: "hi"})
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.NotContains(t, f.messages.touched, "p1")
	assert.Empty(t, f.notifier.posted)
}

func TestLoadRecentEmptyRoom(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})

	out, err := f.svc.LoadRecent(context.Background(), "nobody-here", 50)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestLoadRecentReturnsNewestFiftyOldestFirst(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		_, err := f.svc.Ingest(ctx, "p1", "alice", ClientMessage{Type: TypeText, Content: fmt.Sprintf("m%02d", i)})
		require.NoError(t, err)
	}
	_, err := f.svc.Ingest(ctx, "p2", "bob", ClientMessage{Type: TypeText, Content: "other room"})
	require.NoError(t, err)

	out, err := f.svc.LoadRecent(ctx, "p1", 50)
	require.NoError(t, err)
	require.Len(t, out, 50)
	assert.Equal(t, "m10", out[0].Content)
	assert.Equal(t, "m59", out[49].Content)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].CreatedAt.Before(out[i].CreatedAt))
	}

	// limits above the cap are clamped
	out, err = f.svc.LoadRecent(ctx, "p1", 500)
	require.NoError(t, err)
	assert.Len(t, out, 50)
}

func TestLoadRecentResignsAttachments(t *testing.T) {
	f := newFixture(t, DisplayNameResolver{})
	ctx := context.Background()

	sent, err := f.svc.Ingest(ctx, "p1", "alice", ClientMessage{Type: TypeFile, DocumentID: "doc-1"})
	require.NoError(t, err)

	first, err := f.svc.LoadRecent(ctx, "p1", 50)
	require.NoError(t, err)
	second, err := f.svc.LoadRecent(ctx, "p1", 50)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	a, b := first[0].Attachment, second[0].Attachment
	require.NotNil(t, a)
	require.NotNil(t, b)

	assert.NotEqual(t, a.URL, b.URL)
	assert.NotEqual(t, sent.Attachment.URL, a.URL)
	for _, att := range []*Attachment{a, b} {
		assert.Equal(t, sent.Attachment.Name, att.Name)
		assert.Equal(t, sent.Attachment.Size, att.Size)
		assert.Equal(t, sent.Attachment.Type, att.Type)
	}
}

func TestLoadRecentKeepsRemovedSenders(t *testing.T) {
	resolver := mapResolver{"u1": {ID: "u1", Name: "Ada"}}
	f := newFixture(t, resolver)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, "c1", "u1", ClientMessage{Type: TypeText, Content: "still here"})
	require.NoError(t, err)
	delete(resolver, "u1")

	out, err := f.svc.LoadRecent(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "u1", out[0].Sender.ID)
}

func TestSystemNotice(t *testing.T) {
	msg := SystemNotice("p1", "message rejected")
	assert.Equal(t, TypeSystem, msg.Type)
	assert.Equal(t, "p1", msg.RoomID)
	assert.NotEmpty(t, msg.ID)
}
