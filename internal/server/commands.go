package server

import (
	"fmt"
	"strings"

	"github.com/Tyrowin/linechat/internal/protocol"
)

const helpText = "Available commands: " +
	"/w <user> <message> or /pm <user> <message> - private message; " +
	"/broadcast <message> - announce to everyone; " +
	"/list - show online users; " +
	"/file <name> - share a file; " +
	"/help - show this help; " +
	"/quit - leave the chat"

// interpret applies the command rules to one non-protocol line and returns
// false when the session should end.
func (s *Session) interpret(in protocol.Inbound) bool {
	if in.Kind == protocol.InboundTyping {
		s.router.BroadcastMessage(protocol.Typing(s.Username(), in.Typing))
		return true
	}

	line := strings.TrimSpace(in.Line)
	if line == "" {
		return true
	}

	command, rest := splitCommand(line)
	switch command {
	case "/w", "/pm":
		s.privateMessage(command, rest)
	case "/help":
		s.router.SendSystem(s, helpText)
	case "/broadcast":
		s.announce(rest)
	case "/list":
		s.listUsers()
	case "/quit":
		return false
	case "/file":
		s.shareFile(rest)
	default:
		s.chat(line)
	}
	return true
}

// splitCommand separates a leading slash command from its arguments. Lines
// that do not start with a slash yield an empty command.
func splitCommand(line string) (string, string) {
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	fields := strings.SplitN(line, " ", 2)
	command := strings.ToLower(fields[0])
	if len(fields) == 1 {
		return command, ""
	}
	return command, strings.TrimSpace(fields[1])
}

// allowChat applies the rate limiter to chat-producing input.
func (s *Session) allowChat() bool {
	if s.limiter.allow() {
		return true
	}
	s.log.Warn("Rate limit exceeded; discarding message")
	s.router.SendSystem(s, "You are sending messages too fast. Please slow down.")
	return false
}

func (s *Session) chat(text string) {
	if !s.allowChat() {
		return
	}
	s.countMessage()
	s.router.Broadcast(text, s.id, protocol.TypeChat)
}

func (s *Session) privateMessage(command, args string) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) != 2 || parts[0] == "" || strings.TrimSpace(parts[1]) == "" {
		s.router.SendSystem(s, fmt.Sprintf("Usage: %s <user> <message>", command))
		return
	}
	if !s.allowChat() {
		return
	}
	s.router.SendPrivate(parts[0], s.id, strings.TrimSpace(parts[1]))
}

func (s *Session) announce(text string) {
	if text == "" {
		s.router.SendSystem(s, "Usage: /broadcast <message>")
		return
	}
	if !s.allowChat() {
		return
	}
	s.countMessage()
	s.router.Broadcast("[Broadcast] "+text, s.id, protocol.TypeChat)
}

func (s *Session) listUsers() {
	names := s.router.registry.Usernames()
	s.router.SendSystem(s, fmt.Sprintf("Online users (%d): %s", len(names), strings.Join(names, ", ")))
}

func (s *Session) shareFile(name string) {
	if name == "" {
		s.router.SendSystem(s, "Usage: /file <name>")
		return
	}
	if !s.allowChat() {
		return
	}
	s.router.Broadcast("[File] "+name, s.id, protocol.TypeChat)
}
