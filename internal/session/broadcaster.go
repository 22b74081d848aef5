package session

import (
	"sync"

	"github.com/hersh/gotris-engine/internal/game"
)

const subscriberBuffer = 8

// Broadcaster fans engine snapshots out to subscribers. It implements
// game.Display, so Update runs under the session lock and never blocks.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan game.Snapshot]struct{}
	latest *game.Snapshot
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan game.Snapshot]struct{}),
	}
}

// Subscribe registers a new subscriber. The channel starts out holding the
// most recent snapshot, if any. After Close it returns a closed channel.
func (b *Broadcaster) Subscribe() chan game.Snapshot {
	ch := make(chan game.Snapshot, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	if b.latest != nil {
		ch <- *b.latest
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan game.Snapshot) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Update publishes s to every subscriber. A lagging subscriber loses its
// oldest queued snapshot rather than the newest.
func (b *Broadcaster) Update(s game.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = &s
	for ch := range b.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Latest returns the last published snapshot.
func (b *Broadcaster) Latest() (game.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return game.Snapshot{}, false
	}
	return *b.latest, true
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later updates are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
