package relay

import (
	"strconv"
	"strings"

	"chatrelay/internal/message"
)

func (r *Relay) newMessage(text string) *message.Message {
	return message.New(text, message.WithCapacity(r.messageSize), message.WithLogger(r.logger))
}

func quoted(m *message.Message) string {
	return strconv.Quote(strings.TrimSuffix(m.String(), "\n"))
}

// unicast queues m for exactly one connection. A failure is logged,
// the connection is kept.
func (r *Relay) unicast(c *Connection, m *message.Message) {
	m.EnsureNewline()
	if err := c.enqueue(m); err != nil {
		logWarn(r.logger, "Unicast to", c, "failed:", err)
		return
	}
	logInfo(r.logger, "Unicast to", c, quoted(m))
}

// broadcast queues a copy of m for every connection holding one of the roles
// in filter and returns the number of connections it was queued for.
func (r *Relay) broadcast(filter Roles, m *message.Message) int {
	m.EnsureNewline()
	logInfo(r.logger, "Broadcast:", quoted(m))
	queued := 0
	r.conns.each(func(c *Connection) {
		if !c.roles.Intersects(filter) {
			return
		}
		if err := c.enqueue(m.Clone()); err != nil {
			logWarn(r.logger, "Broadcast to", c, "failed:", err)
			return
		}
		queued++
	})
	return queued
}

// usrmsg relays chat text as "nickname> text".
func (r *Relay) usrmsg(nickname, text string) {
	m := r.newMessage(nickname)
	m.Append("> ")
	m.Append(text)
	r.broadcast(RolesOf(CanReceive), m)
}

// sysmsg announces text as "[ text ]".
func (r *Relay) sysmsg(text string) {
	m := r.newMessage("[ ")
	m.Append(text)
	m.Append(" ]")
	r.broadcast(RolesOf(CanReceive), m)
}
