package download

import "sync"

// EventType distinguishes the task lifecycle notifications.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event carries a task snapshot. The Task value is a copy; receivers may
// keep it without racing the Manager.
type Event struct {
	Type EventType
	Task Task
}

// broadcaster fans every event out to all subscribers. Each subscriber
// receives each event at most once, in publish order. publish runs under
// the Manager mutex while subscribers may call back into the Manager, so
// it must never block; a full subscriber buffer drops the subscriber
// instead.
type broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan Event]struct{})}
}

// subscribe registers a new listener. The returned cancel func must be
// called to release the channel.
func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
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

// publish delivers the event to every current subscriber. A subscriber
// that stopped draining its channel is dropped rather than blocking the
// download pipeline.
func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, ch)
			close(ch)
		}
	}
}
