// Package server accepts client connections, wraps each in a Session and
// exposes the operations a control panel needs: start, stop, admin
// broadcast, kick, and an event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// Server owns the registry, the router and the heartbeat monitor for one
// chat process. Create it with NewServer.
type Server struct {
	cfg      Config
	log      *logrus.Entry
	registry *Registry
	router   *Router
	origins  *originPolicy

	// lifecycle serializes Listen, Serve and Stop; mu guards the fields
	// below it and is only held briefly.
	lifecycle  sync.Mutex
	mu         sync.Mutex
	running    bool
	listener   net.Listener
	cancel     context.CancelFunc
	acceptDone chan struct{}

	connsMu   sync.Mutex
	accepting bool
	conns     map[*Session]struct{}
	wg        sync.WaitGroup

	nextUser atomic.Int64
}

// NewServer creates a stopped server.
func NewServer(cfg Config, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cfg = cfg.Sanitized()
	log := logrus.NewEntry(logger)
	registry := NewRegistry()

	return &Server{
		cfg:      cfg,
		log:      log.WithField("component", "server"),
		registry: registry,
		router:   NewRouter(registry, log),
		origins:  newOriginPolicy(cfg.AllowedOrigins, log.WithField("component", "origin")),
		conns:    make(map[*Session]struct{}),
	}
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Start listens on the given TCP port on all interfaces.
func (s *Server) Start(port int) error {
	return s.Listen(net.JoinHostPort("", strconv.Itoa(port)))
}

// Listen binds addr and starts accepting connections and the heartbeat
// monitor. A bind failure is returned as *BindError and leaves the server
// stopped.
func (s *Server) Listen(addr string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Running() {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		bindErr := &BindError{Addr: addr, Err: err}
		s.log.WithError(err).Errorf("Failed to listen on %s", addr)
		return bindErr
	}

	s.startLocked(ln)
	return nil
}

// Serve starts the server on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Running() {
		return ErrAlreadyRunning
	}
	s.startLocked(ln)
	return nil
}

func (s *Server) startLocked(ln net.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	acceptDone := make(chan struct{})
	s.mu.Lock()
	s.running = true
	s.listener = ln
	s.cancel = cancel
	s.acceptDone = acceptDone
	s.mu.Unlock()

	s.connsMu.Lock()
	s.accepting = true
	s.connsMu.Unlock()

	monitor := NewMonitor(s.registry, s.cfg.Heartbeat, s.log.Logger.WithFields(nil))
	go monitor.Run(ctx)
	go s.acceptLoop(ctx, ln, acceptDone)

	s.log.Infof("Listening on %s", ln.Addr())
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, done chan<- struct{}) {
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.WithError(err).Warn("Error accepting connection")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		remoteAddr := conn.RemoteAddr().String()
		s.log.Debugf("Accepted connection from %s", remoteAddr)
		lineConn := newTCPLineConn(conn, s.cfg.MaxLineSize, s.cfg.WriteTimeout.Std())
		if s.ServeConn(lineConn, remoteAddr) == nil {
			_ = lineConn.Close()
		}
	}
}

// ServeConn wraps conn in a new Session and runs it on its own goroutine.
// It returns nil when the server is not accepting connections; the caller
// then still owns conn.
func (s *Server) ServeConn(conn LineConn, remoteAddr string) *Session {
	id := sessionID(remoteAddr)
	name := fmt.Sprintf("User%d", s.nextUser.Add(1))
	sess := NewSession(id, name, conn, s.router, s.cfg, s.log.Logger.WithFields(nil))

	s.connsMu.Lock()
	if !s.accepting {
		s.connsMu.Unlock()
		return nil
	}
	s.conns[sess] = struct{}{}
	s.wg.Add(1)
	s.connsMu.Unlock()

	go func() {
		defer func() {
			s.connsMu.Lock()
			delete(s.conns, sess)
			s.connsMu.Unlock()
			s.wg.Done()
		}()
		sess.Serve()
	}()

	return sess
}

// sessionID derives the connection identity from host and port. Addresses
// without a port, such as in-memory pipes, get a random id.
func sessionID(remoteAddr string) string {
	host, port, err := net.SplitHostPort(remoteAddr)
	if err != nil || port == "" {
		return uuid.NewString()
	}
	return net.JoinHostPort(host, port)
}

// Stop closes the listener, cancels the heartbeat, tells every session the
// server is going away and disconnects them. It waits for session
// goroutines up to the configured shutdown timeout. Running and Addr report
// the stopped state as soon as Stop begins. Stopping a stopped server is a
// no-op.
func (s *Server) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	ln, cancel, acceptDone := s.listener, s.cancel, s.acceptDone
	s.listener = nil
	s.mu.Unlock()

	s.connsMu.Lock()
	s.accepting = false
	sessions := make([]*Session, 0, len(s.conns))
	for sess := range s.conns {
		sessions = append(sessions, sess)
	}
	s.connsMu.Unlock()

	cancel()
	if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.WithError(err).Warn("Error closing listener")
	}
	<-acceptDone

	s.router.Broadcast("Server is shutting down", "", protocol.TypeSystem)

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Disconnect(ReasonShutdown)
		}(sess)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Infof("Stopped; closed %d sessions", len(sessions))
	case <-time.After(s.cfg.ShutdownTimeout.Std()):
		s.log.Warn("Shutdown timeout reached, some sessions may still be running")
	}
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the listening address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// BroadcastAdminMessage sends an operator notice to every session and
// returns the number of delivery attempts.
func (s *Server) BroadcastAdminMessage(text string) int {
	s.log.Infof("Admin broadcast: %s", text)
	return s.router.Broadcast(text, "", protocol.TypeSystem)
}

// KickUser disconnects the first session named username.
func (s *Server) KickUser(username string) error {
	sess, ok := s.registry.FindByUsername(username, true)
	if !ok {
		return fmt.Errorf("kick %q: %w", username, ErrUserNotFound)
	}

	s.log.WithField("user", sess.Username()).Info("Kicking user")
	s.router.SendSystem(sess, "You have been kicked from the chat")
	sess.Disconnect(ReasonKicked)
	return nil
}

// Roster returns the usernames of all registered sessions.
func (s *Server) Roster() []string {
	return s.registry.Usernames()
}

// ClientCount returns the number of registered sessions.
func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// Registry exposes the session registry for read-only inspection.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Subscribe returns a channel of core events and a function that ends the
// subscription. Events are dropped when the buffer is full.
func (s *Server) Subscribe(buffer int) (<-chan Event, func()) {
	return s.router.events.subscribe(buffer)
}

// DroppedEvents reports how many events subscribers missed.
func (s *Server) DroppedEvents() int64 {
	return s.router.events.Dropped()
}
