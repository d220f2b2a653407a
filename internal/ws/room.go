package ws

import (
	"sync"
	"time"

	"workspacechat/internal/metrics"
	"workspacechat/internal/services/chat"
)

type room struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
	// dead is set under mu when the last member leaves; a joiner that
	// raced the removal retries against a fresh room.
	dead bool
}

func newRoom() *room { return &room{conns: map[Conn]struct{}{}} }

// add reports false when the room was already torn down.
func (r *room) add(c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return false
	}
	r.conns[c] = struct{}{}
	return true
}

// remove deletes c. When that empties the room, onEmpty runs while the lock
// is still held so the registry entry goes away with the last member.
func (r *room) remove(c Conn, onEmpty func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead {
		return
	}
	if _, ok := r.conns[c]; !ok {
		return
	}
	delete(r.conns, c)
	if len(r.conns) == 0 {
		r.dead = true
		onEmpty()
	}
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *room) snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// broadcast sends msg to every member present at call time and returns the
// members whose send failed. I/O happens outside the lock.
func (r *room) broadcast(scope string, msg *chat.Message) (failed []Conn) {
	start := time.Now()
	defer func() {
		metrics.BroadcastDuration.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	}()

	for _, c := range r.snapshot() {
		if err := c.Send(msg); err != nil {
			failed = append(failed, c)
		}
	}
	return failed
}
