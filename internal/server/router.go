// Package server formats protocol messages and fans them out to one or all
// registered sessions via the Router type.
package server

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// ServerName is the sender shown for system-originated messages.
const ServerName = "Server"

// Router delivers messages to sessions found in the Registry. Delivery is
// best effort: every send is a non-blocking enqueue and nothing is retried.
type Router struct {
	registry *Registry
	events   *eventBus
	log      *logrus.Entry
}

// NewRouter creates a Router over registry.
func NewRouter(registry *Registry, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{
		registry: registry,
		events:   newEventBus(),
		log:      log.WithField("component", "router"),
	}
}

// senderName resolves the display name for senderID, falling back to the
// server identity for system broadcasts and unknown ids.
func (r *Router) senderName(senderID string) string {
	if senderID == "" {
		return ServerName
	}
	if s, ok := r.registry.Lookup(senderID); ok {
		return s.Username()
	}
	return ServerName
}

// Broadcast formats content as a message of type t and sends it to every
// session in the current snapshot. It returns the number of delivery
// attempts made.
func (r *Router) Broadcast(content, senderID string, t protocol.Type) int {
	var msg protocol.Message
	switch t {
	case protocol.TypeChat:
		msg = protocol.Chat(r.senderName(senderID), content)
	case protocol.TypeJoin:
		msg = protocol.Join(content)
	case protocol.TypeLeave:
		msg = protocol.Leave(content)
	default:
		msg = protocol.System(content)
	}
	return r.BroadcastMessage(msg)
}

// BroadcastMessage sends a prebuilt message to every session in the current
// snapshot and returns the number of delivery attempts.
func (r *Router) BroadcastMessage(msg protocol.Message) int {
	sessions := r.registry.All()
	for _, s := range sessions {
		s.Send(msg)
	}

	if msg.Type != protocol.TypeTyping && msg.Type != protocol.TypePing {
		r.logMessage(msg)
	}
	r.log.Debugf("Broadcast %s to %d sessions", msg.Type, len(sessions))
	return len(sessions)
}

// BroadcastUserList sends the current roster to every session.
func (r *Router) BroadcastUserList() int {
	names := r.registry.Usernames()
	r.events.publish(Event{Kind: EventRosterChanged, Roster: names})
	return r.BroadcastMessage(protocol.UserList(names))
}

// SendPrivate delivers content from the session fromID to the first session
// named toUsername, echoing the identical message back to the sender. When
// no such user exists, only the sender hears about it. It reports whether
// the recipient was found.
func (r *Router) SendPrivate(toUsername, fromID, content string) bool {
	sender, ok := r.registry.Lookup(fromID)
	if !ok {
		r.log.Debugf("Dropping private message from unregistered session %s", fromID)
		return false
	}

	recipient, ok := r.registry.FindByUsername(toUsername, true)
	if !ok {
		r.SendSystem(sender, fmt.Sprintf("User '%s' not found", toUsername))
		return false
	}

	msg := protocol.Private(sender.Username(), recipient.Username(), content)
	recipient.Send(msg)
	if recipient != sender {
		sender.Send(msg)
	}
	sender.countMessage()
	r.logMessage(msg)
	return true
}

// SendSystem sends a SYSTEM notice to a single session.
func (r *Router) SendSystem(s *Session, text string) bool {
	return s.Send(protocol.System(text))
}

func (r *Router) logMessage(msg protocol.Message) {
	text := msg.Text()
	r.log.Info(text)
	r.events.publish(Event{Kind: EventMessageLogged, Time: msg.Timestamp, Text: text})
}
