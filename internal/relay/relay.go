// Package relay implements the chat relay: a bounded connection table driven
// by a single event loop that dispatches commands and fans out messages.
//
// Every socket gets a reader goroutine, which turns incoming lines and hang-ups
// into events, and a writer goroutine, which drains the connection's outbox.
// Only the loop goroutine owns the table and the connection state.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/message"
)

// Defaults, see the With* options.
const (
	DefaultMaxConnections  = 64
	DefaultMessageSize     = message.DefaultCapacity
	DefaultNicknameLength  = 64
	DefaultQueueSize       = 64
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 2 * time.Second

	rejectTimeout = time.Second
)

// Relay - chat relay core.
type Relay struct {
	maxConnections  int
	messageSize     int
	nicknameLength  int
	queueSize       int
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	logger          Logger

	serving atomic.Bool
	events  chan event
	done    chan struct{}
	sendMu  sync.RWMutex // held for writing while the stopped relay drains events
	conns   *table
}

// New - builds Relay with needed options.
func New(options ...Option) (*Relay, error) {
	r := &Relay{
		maxConnections:  DefaultMaxConnections,
		messageSize:     DefaultMessageSize,
		nicknameLength:  DefaultNicknameLength,
		queueSize:       DefaultQueueSize,
		writeTimeout:    DefaultWriteTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		done:            make(chan struct{}),
	}
	if err := setup(r, options...); err != nil {
		return nil, err
	}
	r.events = make(chan event, r.maxConnections)
	r.conns = newTable(r.maxConnections)
	return r, nil
}

// Serve runs the relay loop until ctx is cancelled or the event source fails.
// Sockets are accepted from ln; ln may be nil when sockets only come through
// Attach. A relay serves once.
//
// A nil error means a clean shutdown. An error wrapping ErrEventSource means
// the listener went away and the process should not continue.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	if !r.serving.CompareAndSwap(false, true) {
		return errors.New("relay.Serve: already served")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if ln != nil {
		logInfo(r.logger, "Listening on", ln.Addr())
		go r.acceptLoop(ctx, ln)
	}
	return r.loop(ctx, ln)
}

// Attach hands an already established socket to the relay, as if it was
// accepted from the listener. The relay owns sock only when nil is returned.
func (r *Relay) Attach(ctx context.Context, sock Socket) error {
	return r.send(ctx, listenerReady{sock})
}

// Announce sends text to all listeners as a system message.
func (r *Relay) Announce(ctx context.Context, text string) error {
	return r.send(ctx, announce{text})
}

// Snapshot returns the live connections ordered by address.
func (r *Relay) Snapshot(ctx context.Context) ([]ConnInfo, error) {
	reply := make(chan []ConnInfo, 1)
	if err := r.send(ctx, snapshotRequest{reply}); err != nil {
		return nil, err
	}
	select {
	case infos := <-reply:
		return infos, nil
	case <-r.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send delivers ev to the loop. Once the relay has stopped it returns
// ErrClosed and ev is not queued.
func (r *Relay) send(ctx context.Context, ev event) error {
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers ev to the loop. It returns false once the loop has stopped.
func (r *Relay) post(ev event) bool {
	return r.send(context.Background(), ev) == nil
}

func (r *Relay) loop(ctx context.Context, ln net.Listener) error {
	defer r.stop()
	for {
		select {
		case <-ctx.Done():
			r.shutdown(ln)
			return nil
		case ev := <-r.events:
			if err := r.handle(ev); err != nil {
				r.shutdown(ln)
				return err
			}
		}
	}
}

func (r *Relay) handle(ev event) error {
	switch ev := ev.(type) {
	case listenerReady:
		r.acceptNew(ev.sock)
	case clientReady:
		c, ok := r.conns.get(ev.id)
		if !ok {
			return nil
		}
		ev.msg.StripNewline()
		r.process(c, ev.msg)
	case clientHangup:
		r.disconnect(ev.id, ev.err)
	case announce:
		r.sysmsg(ev.text)
	case snapshotRequest:
		ev.reply <- r.snapshot()
	case listenerFailed:
		logError(r.logger, "Could not get events:", ev.err)
		return fmt.Errorf("%w: %v", ErrEventSource, ev.err)
	}
	return nil
}

func (r *Relay) acceptLoop(ctx context.Context, ln net.Listener) {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				r.post(listenerFailed{err})
				return
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > time.Second {
				delay = time.Second
			}
			logError(r.logger, "Could not accept incoming connection:", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0
		if !r.post(listenerReady{conn}) {
			conn.Close()
			return
		}
	}
}

// acceptNew sets up, inserts and registers sock. On any failure the socket is
// closed and nil is returned.
func (r *Relay) acceptNew(sock Socket) *Connection {
	c := newConnection(sock, r.queueSize)
	if err := setupSocket(sock); err != nil {
		logError(r.logger, "Could not set up connection from", c.addr+":", err)
		c.close()
		return nil
	}
	if err := r.conns.insert(c); err != nil {
		logError(r.logger, "Rejected", c.addr+":", err)
		go r.reject(c)
		return nil
	}
	go c.serveOutbox(r.writeTimeout, r.logger)
	go r.serveInbox(c)
	logInfo(r.logger, "Accepted", c.addr, "connections:", r.conns.len())
	return c
}

func setupSocket(sock Socket) error {
	tcp, ok := sock.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return fmt.Errorf("keep-alive: %w", err)
	}
	return nil
}

// reject tells the client the relay is full and closes it.
func (r *Relay) reject(c *Connection) {
	defer c.close()
	if d, ok := c.sock.(writeDeadliner); ok {
		d.SetWriteDeadline(time.Now().Add(rejectTimeout))
	}
	m := r.newMessage(textRelayFull)
	m.EnsureNewline()
	m.Send(c.sock)
}

// serveInbox turns lines read from c into events until reading fails.
// A line of exactly messageSize-1 bytes leaves its newline for the next read;
// that lone newline is dropped instead of being relayed as an empty line.
func (r *Relay) serveInbox(c *Connection) {
	reader := bufio.NewReaderSize(c.sock, r.messageSize)
	cut := false
	for {
		m, err := message.Receive(reader, message.WithCapacity(r.messageSize), message.WithLogger(r.logger))
		if err != nil {
			r.post(clientHangup{c.id, err})
			return
		}
		line := m.String()
		if cut && line == "\n" {
			cut = false
			continue
		}
		cut = m.Len() == m.Cap()-1 && !strings.HasSuffix(line, "\n")
		if !r.post(clientReady{c.id, m}) {
			return
		}
	}
}

// disconnect drops the connection. A connection that held CanSend at this
// moment is announced as gone.
func (r *Relay) disconnect(id uuid.UUID, cause error) {
	c, ok := r.conns.get(id)
	if !ok {
		return
	}
	wasSender := c.roles.Has(CanSend)

	c.closeOutbox()
	c.close()
	r.conns.remove(id)
	logInfo(r.logger, "Disconnected", c, "cause:", cause, "connections:", r.conns.len())

	if wasSender {
		r.sysmsg(fmt.Sprintf("'%s' has left the chat.", c.nickname))
	}
}

func (r *Relay) snapshot() []ConnInfo {
	infos := make([]ConnInfo, 0, r.conns.len())
	r.conns.each(func(c *Connection) {
		infos = append(infos, c.info())
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Addr < infos[j].Addr
	})
	return infos
}

// shutdown stops taking sockets, flushes what is queued for at most
// shutdownTimeout and closes every connection.
func (r *Relay) shutdown(ln net.Listener) {
	if ln != nil {
		ln.Close()
	}
	if r.conns.len() > 0 {
		r.sysmsg("relay is shutting down")
	}

	r.conns.each(func(c *Connection) {
		c.closeOutbox()
	})
	flush, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()
	r.conns.each(func(c *Connection) {
		select {
		case <-c.written:
		case <-flush.Done():
		}
	})
	r.conns.each(func(c *Connection) {
		c.close()
		r.conns.remove(c.id)
	})
}

// stop marks the relay closed, waits for senders that are still in flight
// and closes the sockets they handed over.
func (r *Relay) stop() {
	close(r.done)
	r.sendMu.Lock()
	r.drain()
	r.sendMu.Unlock()
	logInfo(r.logger, "Relay stopped")
}

// drain closes sockets that were handed over but never accepted.
func (r *Relay) drain() {
	for {
		select {
		case ev := <-r.events:
			if ready, ok := ev.(listenerReady); ok {
				ready.sock.Close()
			}
		default:
			return
		}
	}
}
