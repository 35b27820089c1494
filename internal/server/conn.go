package server

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLineTooLong is returned by ReadLine when a client line exceeds the
// configured maximum size.
var ErrLineTooLong = errors.New("server: line exceeds maximum size")

// LineConn is a line-oriented, full-duplex client connection. ReadLine and
// WriteLine may be used concurrently with each other, but each by a single
// goroutine only. Close unblocks a pending ReadLine.
type LineConn interface {
	// ReadLine blocks until the next line arrives. The line terminator is
	// stripped.
	ReadLine() (string, error)

	// WriteLine writes one newline-terminated line.
	WriteLine(line string) error

	// SetReadDeadline bounds the next ReadLine calls.
	SetReadDeadline(t time.Time) error

	// Close releases the connection.
	Close() error
}

// tcpLineConn speaks the line protocol over a raw stream connection.
type tcpLineConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	maxLine      int
	writeTimeout time.Duration
}

func newTCPLineConn(conn net.Conn, maxLine int, writeTimeout time.Duration) *tcpLineConn {
	return &tcpLineConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		maxLine:      maxLine,
		writeTimeout: writeTimeout,
	}
}

func (c *tcpLineConn) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, chunk...)
		if c.maxLine > 0 && len(line) > c.maxLine {
			return "", ErrLineTooLong
		}
		if !isPrefix {
			return validUTF8(string(line)), nil
		}
	}
}

func (c *tcpLineConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	if _, err := c.writer.WriteString(line); err != nil {
		return err
	}
	return c.writer.Flush()
}

func (c *tcpLineConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *tcpLineConn) Close() error {
	return c.conn.Close()
}

// wsLineConn speaks the line protocol over WebSocket text frames, one line
// per frame. Frames carrying several lines are split.
type wsLineConn struct {
	conn         *websocket.Conn
	pending      []string
	writeTimeout time.Duration
}

func newWSLineConn(conn *websocket.Conn, maxLine int, writeTimeout time.Duration) *wsLineConn {
	if maxLine > 0 {
		conn.SetReadLimit(int64(maxLine))
	}
	return &wsLineConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *wsLineConn) ReadLine() (string, error) {
	for len(c.pending) == 0 {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				return "", ErrLineTooLong
			}
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(string(data), "\r\n"), "\n") {
			c.pending = append(c.pending, strings.TrimSuffix(line, "\r"))
		}
	}

	line := c.pending[0]
	c.pending = c.pending[1:]
	return validUTF8(line), nil
}

// validUTF8 replaces invalid byte sequences so they are never relayed.
func validUTF8(line string) string {
	return strings.ToValidUTF8(line, "\uFFFD")
}

func (c *wsLineConn) WriteLine(line string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimSuffix(line, "\n")))
}

func (c *wsLineConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close sends a close frame and closes the socket. Both steps are attempted
// even if the first fails.
func (c *wsLineConn) Close() error {
	var errs []error
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) &&
		!errors.Is(err, websocket.ErrCloseSent) {
		errs = append(errs, err)
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
