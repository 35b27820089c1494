package protocol

import (
	"strconv"
	"strings"
)

// InboundKind classifies a client-to-server line.
type InboundKind int

const (
	// InboundText is plain input: chat text or a slash command.
	InboundText InboundKind = iota
	// InboundUsername is the USERNAME|<name> handshake line.
	InboundUsername
	// InboundPong is a liveness reply.
	InboundPong
	// InboundTyping is a TYPING|<user>|<bool> relay request.
	InboundTyping
)

// Inbound is a classified client line.
type Inbound struct {
	Kind     InboundKind
	Line     string
	Username string
	Typing   bool
}

const usernamePrefix = "USERNAME" + Separator

// usernameReplacer strips characters that would split a username across
// message fields or USERLIST entries.
var usernameReplacer = strings.NewReplacer(Separator, "_", ",", "_")

// NormalizeUsername replaces the field separator and the USERLIST comma
// in name with underscores.
func NormalizeUsername(name string) string {
	return usernameReplacer.Replace(name)
}

// ParseInbound classifies a line received from a client. It never fails;
// lines that are not protocol messages are InboundText.
func ParseInbound(line string) Inbound {
	line = trimLineEnd(line)
	in := Inbound{Kind: InboundText, Line: line}

	switch {
	case strings.HasPrefix(line, usernamePrefix):
		name := strings.TrimSpace(strings.TrimPrefix(line, usernamePrefix))
		if name == "" {
			return in
		}
		in.Kind = InboundUsername
		in.Username = NormalizeUsername(name)
	case line == TypePong.String() || strings.HasPrefix(line, TypePong.String()+Separator):
		in.Kind = InboundPong
	case strings.HasPrefix(line, TypeTyping.String()+Separator):
		parts := strings.Split(line, Separator)
		// TYPING|user|bool, or the full encoded form with a timestamp.
		var user, state string
		switch len(parts) {
		case 3:
			user, state = parts[1], parts[2]
		case 4:
			user, state = parts[2], parts[3]
		default:
			return in
		}
		typing, err := strconv.ParseBool(strings.TrimSpace(state))
		if err != nil {
			return in
		}
		in.Kind = InboundTyping
		in.Username = strings.TrimSpace(user)
		in.Typing = typing
	}
	return in
}

// Handshake formats the line a client sends to claim a username.
func Handshake(username string) string {
	return usernamePrefix + username + "\n"
}
