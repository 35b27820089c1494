package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventKind identifies an observable change in the core.
type EventKind int

const (
	_ EventKind = iota
	// EventSessionJoined - a session completed its handshake.
	EventSessionJoined
	// EventSessionLeft - a registered session disconnected.
	EventSessionLeft
	// EventMessageLogged - a message was routed; Text holds its rendering.
	EventMessageLogged
	// EventRosterChanged - the set of usernames changed; Roster holds it.
	EventRosterChanged
	// EventMessageCountChanged - a session's message counter moved; Count holds it.
	EventMessageCountChanged
)

func (k EventKind) String() string {
	switch k {
	case EventSessionJoined:
		return "session-joined"
	case EventSessionLeft:
		return "session-left"
	case EventMessageLogged:
		return "message-logged"
	case EventRosterChanged:
		return "roster-changed"
	case EventMessageCountChanged:
		return "message-count-changed"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers such as a control panel.
type Event struct {
	Kind      EventKind
	Time      time.Time
	SessionID string
	Username  string
	Text      string
	Roster    []string
	Count     int64
}

// eventBus fans events out to subscribers without ever blocking the
// publisher. A subscriber whose buffer is full misses the event.
type eventBus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Int64
}

func newEventBus() *eventBus {
	return &eventBus{
		subs: make(map[int]chan Event),
	}
}

func (b *eventBus) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *eventBus) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many events were discarded because a subscriber was
// not keeping up.
func (b *eventBus) Dropped() int64 {
	return b.dropped.Load()
}
