package room

import "sync"

// broadcaster fans room events out to subscribed connections. Delivery is
// best-effort per connection: a subscriber that cannot keep up has its oldest
// pending event dropped rather than stalling the room.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]subscriber
}

type subscriber struct {
	participantID string // empty for host/observer subscriptions
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]subscriber)}
}

// subscribe registers a connection for future events. The caller must invoke
// the returned cancel function to avoid leaks.
func (b *broadcaster) subscribe(participantID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subs[ch] = subscriber{participantID: participantID}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// publish delivers an event to every matching subscriber without blocking.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, sub := range b.subs {
		if ev.To != "" && ev.To != sub.participantID {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Drop the oldest pending event so a slow client never blocks
			// fan-out for the rest of the room.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// closeAll drops every subscription, closing their channels.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
