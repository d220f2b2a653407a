package ws

import (
	"context"
	"sync"
)

// subscriptionManager keeps exactly one listener per room no matter how many
// local connections joined it.
type subscriptionManager struct {
	listen func(ctx context.Context, roomID string)

	mu   sync.Mutex
	subs map[string]*subEntry // roomID ➜ subscription data
}

type subEntry struct {
	refCnt int
	cancel context.CancelFunc
}

func newSubscriptionManager(listen func(ctx context.Context, roomID string)) *subscriptionManager {
	return &subscriptionManager{
		listen: listen,
		subs:   make(map[string]*subEntry),
	}
}

// Subscribe starts the room's listener on first use; later calls only
// bump the ref-counter.
func (sm *subscriptionManager) Subscribe(roomID string) {
	sm.mu.Lock()
	if e, ok := sm.subs[roomID]; ok {
		e.refCnt++
		sm.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm.subs[roomID] = &subEntry{refCnt: 1, cancel: cancel}
	sm.mu.Unlock()

	go sm.listen(ctx, roomID)
}

// Unsubscribe decrements the ref-counter and stops the listener when the
// last local connection leaves.
func (sm *subscriptionManager) Unsubscribe(roomID string) {
	sm.mu.Lock()
	e, ok := sm.subs[roomID]
	if !ok {
		sm.mu.Unlock()
		return
	}
	e.refCnt--
	if e.refCnt > 0 {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, roomID)
	sm.mu.Unlock()

	// Outside the lock → stop the listener.
	e.cancel()
}

