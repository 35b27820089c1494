// Package server manages individual chat sessions, handling the handshake,
// the read loop, the write pump, and lifecycle control for each connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// Status is a session's lifecycle state. Transitions only move forward:
// Connecting, Active, Disconnecting, Closed.
type Status int32

const (
	StatusConnecting Status = iota
	StatusActive
	StatusDisconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errSessionClosed = errors.New("server: session closed before activation")

// Session represents one client connection in the chat system. It owns the
// connection; the Registry only references it.
type Session struct {
	id     string
	conn   LineConn
	router *Router
	log    *logrus.Entry

	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	limiter          *rateLimiter

	mu          sync.RWMutex
	username    string
	connectedAt time.Time

	stateMu      sync.Mutex
	status       atomic.Int32
	lastPong     atomic.Int64
	messageCount atomic.Int64

	send          chan string
	done          chan struct{}
	writerDone    chan struct{}
	writerStarted atomic.Bool
	closeOnce     sync.Once
}

// NewSession creates a Session in the Connecting state. username is the
// placeholder kept until a handshake supplies another one.
func NewSession(id, username string, conn LineConn, router *Router, cfg Config, log *logrus.Entry) *Session {
	cfg = cfg.Sanitized()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	now := time.Now()
	s := &Session{
		id:               id,
		conn:             conn,
		router:           router,
		log:              log.WithField("session", id),
		handshakeTimeout: cfg.HandshakeTimeout.Std(),
		writeTimeout:     cfg.WriteTimeout.Std(),
		limiter:          newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval.Std()),
		username:         username,
		connectedAt:      now,
		send:             make(chan string, cfg.SendBuffer),
		done:             make(chan struct{}),
		writerDone:       make(chan struct{}),
	}
	s.lastPong.Store(now.UnixNano())
	return s
}

// ID returns the connection identity.
func (s *Session) ID() string {
	return s.id
}

// Username returns the current display name.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) setUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// ConnectedAt returns the registration time.
func (s *Session) ConnectedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectedAt
}

// LastPongAt returns the time of the last liveness reply.
func (s *Session) LastPongAt() time.Time {
	return time.Unix(0, s.lastPong.Load())
}

func (s *Session) touchPong() {
	s.lastPong.Store(time.Now().UnixNano())
}

// MessageCount returns the number of chat messages attributed to the session.
func (s *Session) MessageCount() int64 {
	return s.messageCount.Load()
}

func (s *Session) countMessage() {
	n := s.messageCount.Add(1)
	s.router.events.publish(Event{
		Kind:      EventMessageCountChanged,
		SessionID: s.id,
		Username:  s.Username(),
		Count:     n,
	})
}

// Status returns the lifecycle state.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) setStatus(st Status) {
	s.status.Store(int32(st))
}

// Serve runs the session to completion on the calling goroutine: handshake,
// activation, the read loop and finally Disconnect.
func (s *Session) Serve() {
	s.writerStarted.Store(true)
	go s.writePump()

	first, err := s.handshake()
	if err != nil {
		s.Disconnect(s.logReadError("handshake", err))
		return
	}

	if err := s.activate(); err != nil {
		if !errors.Is(err, errSessionClosed) {
			s.log.WithError(err).Error("Session activation failed")
		}
		s.Disconnect(ReasonIOError)
		return
	}

	if first != "" && !s.handleLine(first) {
		s.Disconnect(ReasonQuit)
		return
	}

	s.Disconnect(s.readLoop())
}

// handshake reads the first line. A USERNAME line sets the name and is
// consumed; any other line is returned for normal processing. The read has
// no deadline unless a handshake timeout is configured.
func (s *Session) handshake() (string, error) {
	if s.handshakeTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout)); err != nil {
			return "", err
		}
	}

	line, err := s.conn.ReadLine()
	if err != nil {
		return "", err
	}

	if s.handshakeTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Time{}); err != nil {
			return "", err
		}
	}

	in := protocol.ParseInbound(line)
	if in.Kind == protocol.InboundUsername {
		s.setUsername(in.Username)
		return "", nil
	}
	if line == "" {
		return "", nil
	}
	return line, nil
}

// activate registers the session and announces it.
func (s *Session) activate() error {
	s.stateMu.Lock()
	if s.Status() != StatusConnecting {
		s.stateMu.Unlock()
		return errSessionClosed
	}

	now := time.Now()
	s.mu.Lock()
	s.connectedAt = now
	s.mu.Unlock()
	s.lastPong.Store(now.UnixNano())

	if err := s.router.registry.Register(s); err != nil {
		s.stateMu.Unlock()
		return fmt.Errorf("register %s: %w", s.id, err)
	}
	s.setStatus(StatusActive)
	s.stateMu.Unlock()

	name := s.Username()
	s.log.WithField("user", name).Info("Session joined")

	s.router.SendSystem(s, fmt.Sprintf("Welcome to the chat, %s! Type /help for a list of commands.", name))
	s.router.Broadcast(name+" joined the chat", s.id, protocol.TypeJoin)
	s.router.BroadcastUserList()
	s.router.events.publish(Event{Kind: EventSessionJoined, SessionID: s.id, Username: name})
	return nil
}

func (s *Session) readLoop() Reason {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			return s.logReadError("read", err)
		}
		if !s.handleLine(line) {
			return ReasonQuit
		}
	}
}

// logReadError logs a read failure and maps it to a disconnect reason.
func (s *Session) logReadError(stage string, err error) Reason {
	select {
	case <-s.done:
		return ReasonClosed
	default:
	}

	switch {
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Debugf("Connection closed during %s: %v", stage, err)
		return ReasonClosed
	case errors.Is(err, ErrLineTooLong):
		s.log.Warnf("Line exceeded maximum size during %s", stage)
		return ReasonIOError
	default:
		s.log.WithError(err).Warnf("Read error during %s", stage)
		return ReasonIOError
	}
}

// handleLine dispatches one inbound line and returns false when the
// session should end.
func (s *Session) handleLine(line string) bool {
	in := protocol.ParseInbound(line)
	switch in.Kind {
	case protocol.InboundPong:
		s.touchPong()
		return true
	case protocol.InboundUsername:
		s.log.Debugf("Ignoring repeated handshake for %q", in.Username)
		return true
	default:
		return s.interpret(in)
	}
}

// Send queues m for delivery without blocking. A full queue marks the
// session as a slow consumer and disconnects it; nothing is retried.
func (s *Session) Send(m protocol.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- protocol.Encode(m):
		return true
	default:
		s.log.Warn("Send queue full; disconnecting session")
		go s.Disconnect(ReasonSlowConsumer)
		return false
	}
}

func (s *Session) writePump() {
	defer close(s.writerDone)

	for {
		select {
		case line := <-s.send:
			if !s.writeLine(line) {
				return
			}
		case <-s.done:
			s.flushQueued()
			return
		}
	}
}

// flushQueued writes whatever is still queued once the session is closing.
func (s *Session) flushQueued() {
	for {
		select {
		case line := <-s.send:
			if !s.writeLine(line) {
				return
			}
		default:
			return
		}
	}
}

// writeLine writes one line. On failure the connection is closed, which
// ends the read loop and with it the session.
func (s *Session) writeLine(line string) bool {
	if err := s.conn.WriteLine(line); err != nil {
		if !isExpectedCloseError(err) {
			s.log.WithError(err).Warn("Write failed")
		}
		if cerr := s.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			s.log.WithError(cerr).Debug("Error closing connection after write failure")
		}
		return false
	}
	return true
}

// Disconnect tears the session down. It is safe to call multiple times and
// from multiple goroutines; only the first call has any effect.
func (s *Session) Disconnect(reason Reason) {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		wasActive := s.Status() == StatusActive
		s.setStatus(StatusDisconnecting)
		s.stateMu.Unlock()

		if wasActive {
			name := s.Username()
			s.router.Broadcast(name+" left the chat", s.id, protocol.TypeLeave)
			s.router.registry.Unregister(s.id)
			s.router.BroadcastUserList()
			s.router.events.publish(Event{Kind: EventSessionLeft, SessionID: s.id, Username: name})
			s.log.WithFields(logrus.Fields{"user": name, "reason": reason}).Info("Session left")
		} else {
			s.log.WithField("reason", reason).Debug("Connection dropped before handshake")
		}

		close(s.done)
		if s.writerStarted.Load() {
			select {
			case <-s.writerDone:
			case <-time.After(s.writeTimeout):
				s.log.Warn("Timed out flushing queued messages")
			}
		}

		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.WithError(err).Warn("Error closing connection")
		}
		s.setStatus(StatusClosed)
	})
}

// Done is closed once the session starts disconnecting.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
