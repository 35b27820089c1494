// Package testhelpers provides common utilities for testing the chat server:
// line clients for the TCP and WebSocket transports plus small HTTP
// assertions.
package testhelpers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking helper unless told otherwise.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// LineClient is a test client speaking the newline-delimited protocol.
type LineClient interface {
	Send(line string) error
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// TCPClient is a LineClient over a raw TCP connection.
type TCPClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

// DialTCP connects to addr and fails the test on error. The connection is
// closed when the test ends.
func DialTCP(t *testing.T, addr string) *TCPClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", addr, err)
	}
	c := &TCPClient{conn: conn, reader: bufio.NewReader(conn)}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Send writes line followed by a newline.
func (c *TCPClient) Send(line string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// ReadLine returns the next line without its terminator.
func (c *TCPClient) ReadLine(timeout time.Duration) (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Close closes the connection.
func (c *TCPClient) Close() error {
	return c.conn.Close()
}

// WSClient is a LineClient over a WebSocket connection.
type WSClient struct {
	conn    *websocket.Conn
	pending []string
}

// ConnectWebSocket dials url with the test origin.
func ConnectWebSocket(url string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// DialWebSocket connects to url and fails the test on error.
func DialWebSocket(t *testing.T, url string) *WSClient {
	t.Helper()

	conn, _, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket %s: %v", url, err)
	}
	c := &WSClient{conn: conn}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Send writes line as one text frame.
func (c *WSClient) Send(line string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// ReadLine returns the next line, splitting frames that carry several.
func (c *WSClient) ReadLine(timeout time.Duration) (string, error) {
	for len(c.pending) == 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
			c.pending = append(c.pending, strings.TrimRight(line, "\r"))
		}
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, nil
}

// Close sends a close frame and closes the connection.
func (c *WSClient) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// SendLine sends line and fails the test on error.
func SendLine(t *testing.T, c LineClient, line string) {
	t.Helper()
	if err := c.Send(line); err != nil {
		t.Fatalf("Failed to send %q: %v", line, err)
	}
}

// ExpectPrefix reads lines until one starts with prefix and returns it.
// PING lines are skipped. The test fails if none arrives within timeout.
func ExpectPrefix(t *testing.T, c LineClient, prefix string, timeout time.Duration) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var seen []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for line with prefix %q; saw %q", prefix, seen)
		}
		line, err := c.ReadLine(remaining)
		if err != nil {
			t.Fatalf("Failed waiting for line with prefix %q: %v; saw %q", prefix, err, seen)
		}
		if strings.HasPrefix(line, prefix) {
			return line
		}
		seen = append(seen, line)
	}
}

// ExpectContains reads lines until one contains substr and returns it.
func ExpectContains(t *testing.T, c LineClient, substr string, timeout time.Duration) string {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var seen []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("Timed out waiting for line containing %q; saw %q", substr, seen)
		}
		line, err := c.ReadLine(remaining)
		if err != nil {
			t.Fatalf("Failed waiting for line containing %q: %v; saw %q", substr, err, seen)
		}
		if strings.Contains(line, substr) {
			return line
		}
		seen = append(seen, line)
	}
}

// Collect returns every line that arrives within d.
func Collect(c LineClient, d time.Duration) []string {
	deadline := time.Now().Add(d)
	var lines []string
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return lines
		}
		line, err := c.ReadLine(remaining)
		if err != nil {
			return lines
		}
		lines = append(lines, line)
	}
}

// ExpectClosed waits for the peer to close the connection.
func ExpectClosed(t *testing.T, c LineClient, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatal("Connection was not closed by the server")
		}
		_, err := c.ReadLine(remaining)
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatal("Connection was not closed by the server")
		}
		return
	}
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within %v: %s", timeout, msg)
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that is closed when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// WebSocketURL turns an httptest URL into the ws:// URL for path.
func WebSocketURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, expected) {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// A JSON body is sent when body is non-nil.
func MakeRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	var req *http.Request
	var err error
	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			t.Fatalf("Failed to encode request body: %v", merr)
		}
		req, err = http.NewRequest(method, url, bytes.NewReader(data))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequest(method, url, http.NoBody)
	}
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}
