package relay

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/message"
)

// Socket is the transport of one client. net.Conn satisfies it, the WebSocket
// gateway provides an adapter.
type Socket interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Connection represents one accepted client. Nickname and roles are only
// touched by the relay loop.
type Connection struct {
	id       uuid.UUID
	sock     Socket
	addr     string
	nickname string
	roles    Roles

	outbox     chan *message.Message
	written    chan struct{} // closed when the writer has drained the outbox
	closeOnce  sync.Once
	outboxOnce sync.Once
}

// ConnInfo is a read-only copy of a connection's state.
type ConnInfo struct {
	ID       uuid.UUID
	Addr     string
	Nickname string
	Roles    Roles
}

func newConnection(sock Socket, queueSize int) *Connection {
	addr := ""
	if a := sock.RemoteAddr(); a != nil {
		addr = a.String()
	}
	return &Connection{
		id:      uuid.New(),
		sock:    sock,
		addr:    addr,
		outbox:  make(chan *message.Message, queueSize),
		written: make(chan struct{}),
	}
}

// ID - stable identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// Addr - peer address, informational only.
func (c *Connection) Addr() string {
	return c.addr
}

// Nickname - empty until the first successful /nick.
func (c *Connection) Nickname() string {
	return c.nickname
}

// Roles - capabilities currently held.
func (c *Connection) Roles() Roles {
	return c.roles
}

func (c *Connection) String() string {
	if c.nickname != "" {
		return c.nickname + "@" + c.addr
	}
	return c.addr
}

func (c *Connection) info() ConnInfo {
	return ConnInfo{ID: c.id, Addr: c.addr, Nickname: c.nickname, Roles: c.roles}
}

func (c *Connection) grant(r Role) {
	c.roles = c.roles.With(r)
}

// enqueue hands m to the writer without blocking.
func (c *Connection) enqueue(m *message.Message) error {
	select {
	case c.outbox <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// serveOutbox writes queued messages until the outbox is closed.
// Send failures are logged, the connection stays.
func (c *Connection) serveOutbox(timeout time.Duration, logger Logger) {
	defer close(c.written)
	deadliner, _ := c.sock.(writeDeadliner)
	for m := range c.outbox {
		if deadliner != nil && timeout > 0 {
			deadliner.SetWriteDeadline(time.Now().Add(timeout))
		}
		if err := m.Send(c.sock); err != nil {
			logError(logger, "Send to", c.addr, "failed:", err)
		}
	}
}

func (c *Connection) closeOutbox() {
	c.outboxOnce.Do(func() {
		close(c.outbox)
	})
}

// close releases the socket. Safe to call more than once; the socket is closed once.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.sock.Close()
	})
}
