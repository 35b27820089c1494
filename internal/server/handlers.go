// Package server exposes HTTP handlers: the WebSocket transport for the line
// protocol, a health check, the browser test page and the admin API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
}

// WebSocketHandler upgrades the request and hands the connection to the
// chat core as a line-oriented session. Each text frame carries one or more
// protocol lines.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if !s.Running() {
		http.Error(w, "Chat server is not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	lineConn := newWSLineConn(conn, s.cfg.MaxLineSize, s.cfg.WriteTimeout.Std())
	if s.ServeConn(lineConn, r.RemoteAddr) == nil {
		_ = lineConn.Close()
	}
}

// HealthHandler reports whether the chat core is accepting connections.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !s.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, "Chat server is stopped")
		return
	}
	_, _ = fmt.Fprintf(w, "Chat server is running! %d clients connected", s.ClientCount())
}

type rosterResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// RosterHandler returns the current usernames as JSON.
func (s *Server) RosterHandler(w http.ResponseWriter, _ *http.Request) {
	users := s.Roster()
	writeJSON(w, http.StatusOK, rosterResponse{Users: users, Count: len(users)})
}

type broadcastRequest struct {
	Text string `json:"text"`
}

type broadcastResponse struct {
	Delivered int `json:"delivered"`
}

// BroadcastHandler sends an admin notice to every session.
func (s *Server) BroadcastHandler(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	n := s.BroadcastAdminMessage(req.Text)
	writeJSON(w, http.StatusAccepted, broadcastResponse{Delivered: n})
}

type kickRequest struct {
	Username string `json:"username"`
}

// KickHandler disconnects the named user.
func (s *Server) KickHandler(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	if err := s.KickUser(req.Username); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			http.Error(w, fmt.Sprintf("User '%s' not found", req.Username), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const maxRequestBody = 1 << 16

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestPageHandler serves a minimal browser client for the WebSocket
// transport. It performs the USERNAME handshake and answers PING.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>linechat</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #log { border: 1px solid #ccc; height: 320px; padding: 8px; overflow-y: scroll; margin: 10px 0; }
        #users { color: #555; }
        input[type="text"] { width: 320px; padding: 4px; }
    </style>
</head>
<body>
    <h1>linechat</h1>
    <div>
        <input type="text" id="name" placeholder="Username">
        <button id="connect" onclick="toggle()">Connect</button>
    </div>
    <div id="users"></div>
    <div id="log"></div>
    <input type="text" id="line" placeholder="Message or /help" disabled>

    <script>
        let ws = null;
        const log = document.getElementById('log');
        const line = document.getElementById('line');
        const users = document.getElementById('users');

        function show(text) {
            const el = document.createElement('div');
            el.textContent = text;
            log.appendChild(el);
            log.scrollTop = log.scrollHeight;
        }

        function handle(raw) {
            const parts = raw.split('|');
            switch (parts[0]) {
            case 'PING':
                ws.send('PONG');
                return;
            case 'USERLIST':
                users.textContent = 'Online: ' + (parts[2] || '');
                return;
            case 'TYPING':
                return;
            case 'CHAT':
                show('[' + parts[1] + '] ' + parts[2] + ': ' + parts.slice(3).join('|'));
                return;
            case 'PRIVATE':
                show('[' + parts[1] + '] ' + parts[2] + ' -> ' + parts[3] + ': ' + parts.slice(4).join('|'));
                return;
            case 'JOIN':
            case 'LEAVE':
            case 'SYSTEM':
                show('[' + parts[1] + '] * ' + parts.slice(2).join('|'));
                return;
            default:
                show(raw);
            }
        }

        function toggle() {
            if (ws) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() {
                const name = document.getElementById('name').value.trim();
                if (name) {
                    ws.send('USERNAME|' + name);
                }
                line.disabled = false;
                document.getElementById('connect').textContent = 'Disconnect';
            };
            ws.onmessage = function(event) {
                event.data.split('\n').filter(Boolean).forEach(handle);
            };
            ws.onclose = function() {
                show('Connection closed');
                line.disabled = true;
                users.textContent = '';
                document.getElementById('connect').textContent = 'Connect';
                ws = null;
            };
        }

        line.addEventListener('keypress', function(e) {
            if (e.key === 'Enter' && ws && line.value.trim()) {
                ws.send(line.value);
                line.value = '';
            }
        });
    </script>
</body>
</html>`
