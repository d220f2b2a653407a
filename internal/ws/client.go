package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"workspacechat/internal/services/chat"
)

var (
	errConnClosed     = errors.New("connection closed")
	errMalformedFrame = errors.New("malformed frame")
)

type clientConn struct {
	rawConn *websocket.Conn
	mu      sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

var _ Conn = (*clientConn)(nil)

func newClientConn(rawConn *websocket.Conn, readLimit int64) *clientConn {
	c := &clientConn{rawConn: rawConn, done: make(chan struct{})}
	rawConn.SetReadLimit(readLimit)
	_ = rawConn.SetReadDeadline(time.Now().Add(pongWait))
	rawConn.SetPongHandler(func(string) error {
		return rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

func (c *clientConn) Send(msg *chat.Message) error {
	if c.closed.Load() {
		return errConnClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteJSON(msg)
}

// ReceiveNext returns errMalformedFrame for frames that are not a JSON
// client message; the transport is still usable after that error.
func (c *clientConn) ReceiveNext() (chat.ClientMessage, error) {
	var in chat.ClientMessage
	_, data, err := c.rawConn.ReadMessage()
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	return in, nil
}

func (c *clientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.rawConn.Close()
	})
	return err
}

func (c *clientConn) ping() error {
	return c.rawConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// pinger keeps the read deadline moving on healthy peers; a failed ping
// closes the transport, which ends ReceiveNext.
func (c *clientConn) pinger() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
