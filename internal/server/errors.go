package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	// ErrAlreadyRunning is returned by Start when the server is listening already.
	ErrAlreadyRunning = errors.New("server: already running")

	// ErrUserNotFound is returned when no registered session carries a username.
	ErrUserNotFound = errors.New("server: user not found")

	// ErrDuplicateSession is returned by Registry.Register for an id that is
	// registered already.
	ErrDuplicateSession = errors.New("server: session already registered")
)

// BindError reports that the listening socket could not be opened. The
// server stays stopped and the caller may retry with another address.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("server: cannot listen on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// Reason describes why a session was disconnected.
type Reason int

const (
	_ Reason = iota
	// ReasonQuit - the client sent /quit.
	ReasonQuit
	// ReasonClosed - the client closed its end of the stream.
	ReasonClosed
	// ReasonIOError - a read or write on the connection failed.
	ReasonIOError
	// ReasonHeartbeatTimeout - no PONG arrived within the liveness threshold.
	ReasonHeartbeatTimeout
	// ReasonKicked - an operator removed the session.
	ReasonKicked
	// ReasonShutdown - the server is stopping.
	ReasonShutdown
	// ReasonSlowConsumer - the outbound queue overflowed.
	ReasonSlowConsumer
)

func (r Reason) String() string {
	switch r {
	case ReasonQuit:
		return "quit"
	case ReasonClosed:
		return "connection closed"
	case ReasonIOError:
		return "i/o error"
	case ReasonHeartbeatTimeout:
		return "heartbeat timeout"
	case ReasonKicked:
		return "kicked"
	case ReasonShutdown:
		return "server shutdown"
	case ReasonSlowConsumer:
		return "send queue full"
	default:
		return "unknown"
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "io: read/write on closed pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
