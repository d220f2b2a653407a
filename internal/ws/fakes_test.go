package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"workspacechat/internal/services/chat"
)

// fakeConn is an in-memory Conn. Frames pushed into inbox come out of
// ReceiveNext; closing inbox is a clean end of stream.
type fakeConn struct {
	name string

	mu        sync.Mutex
	sent      []*chat.Message
	sendCalls int
	sendErr   error

	received  chan *chat.Message
	inbox     chan chat.ClientMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{
		name:     name,
		received: make(chan *chat.Message, 256),
		inbox:    make(chan chat.ClientMessage, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Send(msg *chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls++
	if c.sendErr != nil {
		return c.sendErr
	}
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.sent = append(c.sent, msg)
	c.received <- msg
	return nil
}

func (c *fakeConn) ReceiveNext() (chat.ClientMessage, error) {
	select {
	case in, ok := <-c.inbox:
		if !ok {
			return chat.ClientMessage{}, io.EOF
		}
		return in, nil
	case <-c.closed:
		return chat.ClientMessage{}, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) breakTransport() {
	c.mu.Lock()
	c.sendErr = errors.New("broken pipe")
	c.mu.Unlock()
}

func (c *fakeConn) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next waits for the next delivered message.
func (c *fakeConn) next(timeout time.Duration) (*chat.Message, bool) {
	select {
	case m := <-c.received:
		return m, true
	case <-time.After(timeout):
		return nil, false
	}
}

// fakeService is a chat core backed by a slice per room. Only "doc-1"
// resolves as a document.
type fakeService struct {
	mu          sync.Mutex
	seq         int
	attempts    int
	history     map[string][]chat.Message
	failPersist bool
}

func newFakeService() *fakeService {
	return &fakeService{history: map[string][]chat.Message{}}
}

func (f *fakeService) Scope() chat.Scope { return chat.ScopeProject }

func (f *fakeService) Ingest(_ context.Context, roomID, senderID string, in chat.ClientMessage) (*chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++

	if in.Type != chat.TypeText && in.Type != chat.TypeFile {
		return nil, chat.ErrInvalidMessage
	}
	msg := chat.Message{
		RoomID:  roomID,
		Sender:  chat.Identity{ID: senderID, Name: senderID},
		Content: in.Content,
		Type:    in.Type,
	}
	if in.Type == chat.TypeFile {
		if in.DocumentID != "doc-1" {
			return nil, chat.ErrDocumentNotFound
		}
		msg.Attachment = &chat.Attachment{Name: "plan.pdf", URL: "https://files.test/plan.pdf", Size: 10, Type: "application/pdf"}
	}
	if f.failPersist {
		return nil, errors.New("db down")
	}
	f.seq++
	msg.ID = fmt.Sprintf("m%d", f.seq)
	msg.CreatedAt = time.Now().UTC()
	f.history[roomID] = append(f.history[roomID], msg)
	return &msg, nil
}

func (f *fakeService) LoadRecent(_ context.Context, roomID string, limit int) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.history[roomID]
	if len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]chat.Message(nil), h...), nil
}

func (f *fakeService) persisted(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.history[roomID])
}

func (f *fakeService) ingestAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
