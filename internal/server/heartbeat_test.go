package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/linechat/internal/protocol"
	"github.com/Tyrowin/linechat/internal/testhelpers"
)

func TestMonitorTickPingsAndEvicts(t *testing.T) {
	r := newTestRouter()
	now := time.Now()
	alive := addActiveSession(t, r, "alive", "Alive", now)
	stale := addActiveSession(t, r, "stale", "Stale", now.Add(time.Millisecond))
	stale.lastPong.Store(now.Add(-time.Minute).UnixNano())

	m := NewMonitor(r.registry, HeartbeatConfig{
		InitialDelay: Duration(time.Hour),
		Interval:     Duration(time.Hour),
		Timeout:      Duration(30 * time.Second),
	}, r.log)

	if evicted := m.tick(now); evicted != 1 {
		t.Fatalf("tick evicted %d sessions, want 1", evicted)
	}

	testhelpers.Eventually(t, testTimeout, func() bool {
		return stale.Status() == StatusClosed
	}, "stale session should be disconnected")

	msgs := drain(alive)
	if n := countType(msgs, protocol.TypePing); n != 1 {
		t.Errorf("Expected 1 PING, got %d", n)
	}
	if n := countType(msgs, protocol.TypeLeave); n != 1 {
		t.Errorf("Expected 1 LEAVE, got %d", n)
	}
	if n := countType(msgs, protocol.TypeUserList); n != 1 {
		t.Errorf("Expected 1 USERLIST, got %d", n)
	}
	if r.registry.Len() != 1 {
		t.Errorf("Expected 1 registered session, got %d", r.registry.Len())
	}

	if evicted := m.tick(time.Now()); evicted != 0 {
		t.Errorf("Second tick evicted %d sessions", evicted)
	}
}

func TestMonitorStopsOnCancel(t *testing.T) {
	r := newTestRouter()
	alive := addActiveSession(t, r, "a", "Alice", time.Now())

	m := NewMonitor(r.registry, HeartbeatConfig{
		InitialDelay: Duration(10 * time.Millisecond),
		Interval:     Duration(10 * time.Millisecond),
		Timeout:      Duration(time.Hour),
	}, r.log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	testhelpers.Eventually(t, testTimeout, func() bool {
		return len(alive.send) > 0
	}, "monitor should ping")

	cancel()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHeartbeatEvictsSilentClient(t *testing.T) {
	srv := startTestServer(t, func(cfg *Config) {
		cfg.Heartbeat = HeartbeatConfig{
			InitialDelay: Duration(50 * time.Millisecond),
			Interval:     Duration(50 * time.Millisecond),
			Timeout:      Duration(200 * time.Millisecond),
		}
	})

	responsive := joinTCP(t, srv, "Responsive")
	silent := joinTCP(t, srv, "Silent")

	var seen []string
	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		line, err := responsive.ReadLine(100 * time.Millisecond)
		if err != nil {
			continue
		}
		if strings.HasPrefix(line, "PING") {
			testhelpers.SendLine(t, responsive, "PONG")
			continue
		}
		seen = append(seen, stripTimestamp(line))
	}

	leaves := 0
	for _, line := range seen {
		if line == "LEAVE|Silent left the chat" {
			leaves++
		}
	}
	if leaves != 1 {
		t.Errorf("Expected exactly one LEAVE for Silent, saw %q", seen)
	}

	testhelpers.ExpectClosed(t, silent, testTimeout)
	if got := srv.Roster(); len(got) != 1 || got[0] != "Responsive" {
		t.Errorf("Roster = %v, want [Responsive]", got)
	}
}
