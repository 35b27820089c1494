package server

import (
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/protocol"
	"github.com/Tyrowin/linechat/internal/testhelpers"
)

const testTimeout = 2 * time.Second

// stubConn is a LineConn that never delivers input and counts closes.
type stubConn struct {
	closes atomic.Int32
	once   sync.Once
	closed chan struct{}
}

func newStubConn() *stubConn {
	return &stubConn{closed: make(chan struct{})}
}

func (c *stubConn) ReadLine() (string, error) {
	<-c.closed
	return "", io.EOF
}

func (c *stubConn) WriteLine(string) error { return nil }

func (c *stubConn) SetReadDeadline(time.Time) error { return nil }

func (c *stubConn) Close() error {
	c.closes.Add(1)
	c.once.Do(func() { close(c.closed) })
	return nil
}

// newTestRouter returns a router over an empty registry with logging off.
func newTestRouter() *Router {
	return NewRouter(NewRegistry(), logging.Discard().WithFields(nil))
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.Heartbeat.InitialDelay = Duration(time.Hour)
	cfg.RateLimit.Burst = 100
	return cfg.Sanitized()
}

// addActiveSession registers an Active session named name without running
// its read loop; outbound messages stay in its send queue.
func addActiveSession(t *testing.T, r *Router, id, name string, connectedAt time.Time) *Session {
	t.Helper()

	s := NewSession(id, name, newStubConn(), r, testConfig(), r.log)
	s.connectedAt = connectedAt
	if err := r.registry.Register(s); err != nil {
		t.Fatalf("Register(%s) failed: %v", id, err)
	}
	s.setStatus(StatusActive)
	return s
}

// drain decodes everything queued for s.
func drain(s *Session) []protocol.Message {
	var msgs []protocol.Message
	for {
		select {
		case line := <-s.send:
			msgs = append(msgs, protocol.Decode(line))
		default:
			return msgs
		}
	}
}

func countType(msgs []protocol.Message, t protocol.Type) int {
	n := 0
	for _, m := range msgs {
		if m.Type == t {
			n++
		}
	}
	return n
}

// startTestServer starts a server on a loopback port and stops it when the
// test ends.
func startTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg, logging.Discard())
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

// joinTCP connects, completes the handshake as name and consumes the
// welcome sequence up to the session's own USERLIST.
func joinTCP(t *testing.T, srv *Server, name string) *testhelpers.TCPClient {
	t.Helper()

	c := testhelpers.DialTCP(t, srv.Addr().String())
	testhelpers.SendLine(t, c, strings.TrimSuffix(protocol.Handshake(name), "\n"))
	testhelpers.ExpectContains(t, c, "Welcome to the chat, "+name, testTimeout)
	testhelpers.ExpectPrefix(t, c, "USERLIST|", testTimeout)
	return c
}
