// Package protocol implements the pipe-delimited line format spoken between
// chat clients and the server.
//
// Every server message is a single line of the form
//
//	TYPE|HH:MM:SS|field1|field2|...
//
// terminated by a newline. Decoding never fails: lines that do not match a
// known shape come back as TypeRaw so callers can still display them.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type identifies the kind of a protocol message.
type Type int

const (
	// TypeRaw is the fallback for lines that could not be decoded.
	TypeRaw Type = iota
	TypeChat
	TypePrivate
	TypeJoin
	TypeLeave
	TypeSystem
	TypeUserList
	TypeTyping
	TypePing
	TypePong
)

var typeNames = map[Type]string{
	TypeRaw:      "RAW",
	TypeChat:     "CHAT",
	TypePrivate:  "PRIVATE",
	TypeJoin:     "JOIN",
	TypeLeave:    "LEAVE",
	TypeSystem:   "SYSTEM",
	TypeUserList: "USERLIST",
	TypeTyping:   "TYPING",
	TypePing:     "PING",
	TypePong:     "PONG",
}

// fieldCounts holds the number of fields carried after the timestamp.
var fieldCounts = map[Type]int{
	TypeChat:     2,
	TypePrivate:  3,
	TypeJoin:     1,
	TypeLeave:    1,
	TypeSystem:   1,
	TypeUserList: 1,
	TypeTyping:   2,
	TypePing:     0,
	TypePong:     0,
}

// String returns the wire name of the type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps a wire name to its Type. Unknown names report false.
func ParseType(name string) (Type, bool) {
	for t, n := range typeNames {
		if t != TypeRaw && n == name {
			return t, true
		}
	}
	return TypeRaw, false
}

// FieldCount returns how many fields follow the timestamp for t.
func (t Type) FieldCount() int {
	return fieldCounts[t]
}

// Message is one timestamped protocol unit.
type Message struct {
	Type      Type
	Timestamp time.Time
	Fields    []string
}

// Field returns the i-th field or an empty string when absent.
func (m Message) Field(i int) string {
	if i < 0 || i >= len(m.Fields) {
		return ""
	}
	return m.Fields[i]
}

// Text renders the message as a human readable line for logs and the
// collaborator event stream.
func (m Message) Text() string {
	ts := m.Timestamp.Format(TimeLayout)
	switch m.Type {
	case TypeChat:
		return fmt.Sprintf("[%s] %s: %s", ts, m.Field(0), m.Field(1))
	case TypePrivate:
		return fmt.Sprintf("[%s] %s -> %s: %s", ts, m.Field(0), m.Field(1), m.Field(2))
	case TypeJoin, TypeLeave, TypeSystem:
		return fmt.Sprintf("[%s] *** %s", ts, m.Field(0))
	case TypeUserList:
		return fmt.Sprintf("[%s] users: %s", ts, m.Field(0))
	case TypeTyping:
		return fmt.Sprintf("[%s] %s typing=%s", ts, m.Field(0), m.Field(1))
	case TypePing, TypePong:
		return fmt.Sprintf("[%s] %s", ts, m.Type)
	default:
		return m.Field(0)
	}
}

func newMessage(t Type, fields ...string) Message {
	return Message{Type: t, Timestamp: time.Now(), Fields: fields}
}

// Chat builds a broadcast chat line.
func Chat(sender, content string) Message {
	return newMessage(TypeChat, sender, content)
}

// Private builds a point-to-point message.
func Private(sender, recipient, content string) Message {
	return newMessage(TypePrivate, sender, recipient, content)
}

// Join builds a membership announcement for a new session.
func Join(text string) Message {
	return newMessage(TypeJoin, text)
}

// Leave builds a membership announcement for a departed session.
func Leave(text string) Message {
	return newMessage(TypeLeave, text)
}

// System builds a server-originated notice.
func System(text string) Message {
	return newMessage(TypeSystem, text)
}

// UserList builds a roster snapshot.
func UserList(usernames []string) Message {
	return newMessage(TypeUserList, strings.Join(usernames, ","))
}

// Typing builds a typing-state relay.
func Typing(username string, typing bool) Message {
	return newMessage(TypeTyping, username, strconv.FormatBool(typing))
}

// Ping builds a liveness check.
func Ping() Message {
	return newMessage(TypePing)
}

// Pong builds a liveness reply.
func Pong() Message {
	return newMessage(TypePong)
}

// Raw wraps an undecodable line.
func Raw(line string) Message {
	return newMessage(TypeRaw, line)
}

// Users splits a USERLIST payload. An empty roster yields an empty slice.
func (m Message) Users() []string {
	if m.Type != TypeUserList || m.Field(0) == "" {
		return []string{}
	}
	return strings.Split(m.Field(0), ",")
}
