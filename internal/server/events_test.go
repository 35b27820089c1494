package server

import "testing"

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := newEventBus()
	events, cancel := bus.subscribe(1)

	bus.publish(Event{Kind: EventSessionJoined, Username: "Alice"})
	bus.publish(Event{Kind: EventSessionJoined, Username: "Bob"})

	e := <-events
	if e.Username != "Alice" || e.Time.IsZero() {
		t.Errorf("Unexpected event %+v", e)
	}
	if bus.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", bus.Dropped())
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Error("Channel should be closed after cancel")
	}

	bus.publish(Event{Kind: EventSessionLeft})
}

func TestEventKindString(t *testing.T) {
	if EventRosterChanged.String() != "roster-changed" {
		t.Errorf("String() = %q", EventRosterChanged.String())
	}
	if EventKind(99).String() != "unknown" {
		t.Errorf("Unknown kinds should render as unknown")
	}
}
