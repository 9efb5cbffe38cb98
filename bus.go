package idsession

import (
	"sync"

	"github.com/google/uuid"
)

// Broadcaster is the process-wide session-invalidation channel. Any number
// of machines (one per mounted consumer) subscribe; a publish wakes each of
// them to re-validate the session and re-fetch profile and group data.
//
// Delivery order across subscribers is unspecified. Notifications carry no
// payload and coalesce: a subscriber that is already signalled is not
// signalled twice, because its reaction re-fetches everything anyway.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]chan struct{}
}

// NewBroadcaster creates an empty broadcaster. Most applications use
// [DefaultBroadcaster] so independent machines observe each other's
// mutations.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan struct{})}
}

// DefaultBroadcaster is the process-wide instance machines attach to unless
// [Builder.WithBroadcaster] overrides it (tests do).
var DefaultBroadcaster = NewBroadcaster()

// Subscribe registers a new listener and returns its id and channel. The
// caller must Unsubscribe with the same id on teardown so a stale machine
// never acts on a signal.
func (b *Broadcaster) Subscribe() (string, <-chan struct{}) {
	id := uuid.NewString()
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// Unsubscribe releases a listener. Safe to call with an unknown id.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish signals every subscriber. Never blocks: a subscriber with a
// pending signal keeps the one it has.
func (b *Broadcaster) Publish() {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *Broadcaster) subscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
