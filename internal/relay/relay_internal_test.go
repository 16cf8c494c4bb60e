package relay

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/message"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "test" }
func (a fakeAddr) String() string  { return string(a) }

type fakeSocket struct {
	addr string
	mu   sync.Mutex
	shut bool
}

func (s *fakeSocket) Read(p []byte) (int, error)  { return 0, io.EOF }
func (s *fakeSocket) Write(p []byte) (int, error) { return len(p), nil }
func (s *fakeSocket) RemoteAddr() net.Addr        { return fakeAddr(s.addr) }

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shut = true
	return nil
}

func (s *fakeSocket) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shut
}

func newTestRelay(t *testing.T, options ...Option) *Relay {
	t.Helper()
	r, err := New(options...)
	if err != nil {
		t.Fatalf("relay.New: unexpected error: %v", err)
	}
	return r
}

// join inserts a connection without starting its reader and writer,
// so queued messages stay in the outbox.
func join(t *testing.T, r *Relay, addr string) *Connection {
	t.Helper()
	c := newConnection(&fakeSocket{addr: addr}, r.queueSize)
	if err := r.conns.insert(c); err != nil {
		t.Fatalf("insert %s: %v", addr, err)
	}
	return c
}

// queued drains everything waiting in c's outbox.
func queued(c *Connection) []string {
	var lines []string
	for {
		select {
		case m := <-c.outbox:
			lines = append(lines, m.String())
		default:
			return lines
		}
	}
}

func send(r *Relay, c *Connection, line string) {
	r.process(c, message.New(line))
}

func expectLines(t *testing.T, who string, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %q, got %q", who, want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s: line %d: expected %q, got %q", who, i, want[i], got[i])
		}
	}
}

func TestRoles(t *testing.T) {
	var s Roles
	if s.Has(CanReceive) || s.Has(CanSend) {
		t.Error("empty set has roles")
	}
	if s.String() != "none" {
		t.Errorf("unexpected String() %q", s.String())
	}
	s = s.With(CanSend)
	if !s.Has(CanSend) || s.Has(CanReceive) {
		t.Errorf("unexpected set %v", s)
	}
	if !s.Intersects(RolesOf(CanReceive, CanSend)) {
		t.Error("expected intersection with both roles")
	}
	if s.Intersects(RolesOf(CanReceive)) {
		t.Error("unexpected intersection with CanReceive")
	}
	if RolesOf(CanReceive, CanSend).String() != "receive,send" {
		t.Errorf("unexpected String() %q", RolesOf(CanReceive, CanSend).String())
	}
}

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  command
		text string
	}{
		{"", cmdMsg, ""},
		{"/", cmdMsg, "/"},
		{"hello", cmdMsg, "hello"},
		{"/listen", cmdListen, ""},
		{"/listen   now", cmdListen, "now"},
		{"/listener", cmdMsg, "/listener"},
		{"/nick", cmdNick, ""},
		{"/nick Alice", cmdNick, "Alice"},
		{"/nick    Alice Smith", cmdNick, "Alice Smith"},
		{"/nickname Alice", cmdMsg, "/nickname Alice"},
		{"/msg hi there", cmdMsg, "hi there"},
		{"/ nick Alice", cmdMsg, "/ nick Alice"},
		{"/unknown", cmdMsg, "/unknown"},
		{" /listen", cmdMsg, " /listen"},
	}
	for _, tt := range tests {
		cmd, text := detectCommand(tt.line)
		if cmd != tt.cmd || text != tt.text {
			t.Errorf("detectCommand(%q): expected (%v, %q), got (%v, %q)", tt.line, tt.cmd, tt.text, cmd, text)
		}
	}
}

func TestBoundedNickname(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"Plain", "Alice", 64, "Alice"},
		{"FirstWord", "Alice Smith", 64, "Alice"},
		{"Empty", "", 64, ""},
		{"Truncated", "abcdefgh", 5, "abcd"},
		{"RuneBoundary", "ab⌘", 5, "ab"},
		{"OnlyMultibyte", "⌘", 2, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := boundedNickname(tt.text, tt.limit); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTable(t *testing.T) {
	tb := newTable(2)
	a := newConnection(&fakeSocket{addr: "a"}, 1)
	b := newConnection(&fakeSocket{addr: "b"}, 1)
	c := newConnection(&fakeSocket{addr: "c"}, 1)

	if err := tb.insert(a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := tb.insert(b); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := tb.insert(c); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if tb.len() != 2 {
		t.Fatalf("expected 2 connections, got %d", tb.len())
	}

	if !tb.remove(a.ID()) {
		t.Error("remove a: not found")
	}
	if tb.remove(a.ID()) {
		t.Error("remove a twice: found")
	}
	if _, ok := tb.get(b.ID()); !ok {
		t.Error("b is gone after removing a")
	}
	if err := tb.insert(c); err != nil {
		t.Errorf("insert c after removal: %v", err)
	}
}

func TestProcessListen(t *testing.T) {
	r := newTestRelay(t)
	c := join(t, r, "listener")
	send(r, c, "/listen")
	if !c.Roles().Has(CanReceive) {
		t.Error("expected CanReceive after /listen")
	}
	if c.Roles().Has(CanSend) {
		t.Error("unexpected CanSend after /listen")
	}
	expectLines(t, "listener", queued(c))
}

func TestProcessMessageBeforeNick(t *testing.T) {
	r := newTestRelay(t)
	anon := join(t, r, "anon")
	listener := join(t, r, "listener")
	send(r, listener, "/listen")
	send(r, anon, "/listen")

	send(r, anon, "Hello")
	expectLines(t, "anon", queued(anon), textNickFirst+"\n")
	expectLines(t, "listener", queued(listener))

	send(r, anon, "/listener")
	expectLines(t, "anon", queued(anon), textNickFirst+"\n")
	expectLines(t, "listener", queued(listener))
}

func TestProcessEmptyNick(t *testing.T) {
	for _, line := range []string{"/nick", "/nick ", "/nick     "} {
		r := newTestRelay(t)
		c := join(t, r, "client")
		listener := join(t, r, "listener")
		send(r, listener, "/listen")

		send(r, c, line)
		expectLines(t, line, queued(c), textEmptyNickname+"\n")
		expectLines(t, "listener", queued(listener))
		if c.Nickname() != "" || c.Roles() != 0 {
			t.Errorf("%q changed state: nickname %q, roles %v", line, c.Nickname(), c.Roles())
		}
	}
}

func TestProcessNickJoinThenRename(t *testing.T) {
	r := newTestRelay(t)
	c := join(t, r, "client")
	listener := join(t, r, "listener")
	send(r, listener, "/listen")

	send(r, c, "/nick Alice")
	if !c.Roles().Has(CanSend) {
		t.Fatal("expected CanSend after /nick")
	}
	send(r, c, "/nick   Bob and more")

	if c.Nickname() != "Bob" {
		t.Errorf("expected nickname Bob, got %q", c.Nickname())
	}
	expectLines(t, "listener", queued(listener),
		"[ 'Alice' has joined the chat. ]\n",
		"[ 'Alice' is now 'Bob'. ]\n",
	)
	expectLines(t, "client", queued(c), textConnected+"\n", textConnected+"\n")
}

func TestProcessNickBounded(t *testing.T) {
	r := newTestRelay(t, WithNicknameLength(4))
	c := join(t, r, "client")
	send(r, c, "/nick Alexander")
	if c.Nickname() != "Ale" {
		t.Errorf("expected nickname cut to 3 bytes, got %q", c.Nickname())
	}
}

func TestProcessUserMessage(t *testing.T) {
	r := newTestRelay(t)
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	silent := join(t, r, "silent")
	send(r, bob, "/listen")
	send(r, alice, "/nick Alice")
	queued(alice)
	queued(bob)

	send(r, alice, "Hello")
	send(r, alice, "/msg  explicit")
	send(r, alice, "bad\x00tail")
	expectLines(t, "bob", queued(bob), "Alice> Hello\n", "Alice> explicit\n", "Alice> bad\n")
	expectLines(t, "alice", queued(alice))
	expectLines(t, "silent", queued(silent))
}

func TestBroadcastFilter(t *testing.T) {
	r := newTestRelay(t)
	none := join(t, r, "none")
	receiver := join(t, r, "receiver")
	sender := join(t, r, "sender")
	both := join(t, r, "both")
	receiver.grant(CanReceive)
	sender.grant(CanSend)
	both.grant(CanReceive)
	both.grant(CanSend)

	n := r.broadcast(RolesOf(CanReceive), r.newMessage("to receivers"))
	if n != 2 {
		t.Errorf("expected 2 receivers, got %d", n)
	}
	expectLines(t, "none", queued(none))
	expectLines(t, "receiver", queued(receiver), "to receivers\n")
	expectLines(t, "sender", queued(sender))
	expectLines(t, "both", queued(both), "to receivers\n")

	n = r.broadcast(RolesOf(CanSend), r.newMessage("to senders\n"))
	if n != 2 {
		t.Errorf("expected 2 senders, got %d", n)
	}
	expectLines(t, "sender", queued(sender), "to senders\n")
	expectLines(t, "receiver", queued(receiver))
}

func TestBroadcastQueueFull(t *testing.T) {
	r := newTestRelay(t, WithQueueSize(1))
	c := join(t, r, "slow")
	c.grant(CanReceive)

	r.sysmsg("one")
	r.sysmsg("two")
	expectLines(t, "slow", queued(c), "[ one ]\n")
	if _, ok := r.conns.get(c.ID()); !ok {
		t.Error("connection was dropped on a full queue")
	}
}

func TestBroadcastTruncates(t *testing.T) {
	r := newTestRelay(t, WithMessageSize(16))
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	bob.grant(CanReceive)
	send(r, alice, "/nick Alice")
	queued(bob)

	send(r, alice, strings.Repeat("x", 40))
	lines := queued(bob)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", lines)
	}
	if len(lines[0]) != 15 || !strings.HasSuffix(lines[0], "\n") || !strings.HasPrefix(lines[0], "Alice> ") {
		t.Errorf("unexpected truncated line %q", lines[0])
	}
}

func TestDisconnect(t *testing.T) {
	r := newTestRelay(t)
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	carol := join(t, r, "carol")
	bob.grant(CanReceive)
	carol.grant(CanReceive)
	alice.grant(CanReceive)
	send(r, alice, "/nick Alice")
	queued(bob)
	queued(carol)

	r.disconnect(alice.ID(), io.EOF)

	if r.conns.len() != 2 {
		t.Fatalf("expected 2 connections, got %d", r.conns.len())
	}
	for _, c := range []*Connection{bob, carol} {
		if _, ok := r.conns.get(c.ID()); !ok {
			t.Errorf("%s was removed", c.Addr())
		}
		expectLines(t, c.Addr(), queued(c), "[ 'Alice' has left the chat. ]\n")
	}
	if !alice.sock.(*fakeSocket).closed() {
		t.Error("socket of the departed connection is open")
	}

	r.disconnect(alice.ID(), io.EOF)
	expectLines(t, "bob", queued(bob))
}

func TestDisconnectWithoutNick(t *testing.T) {
	r := newTestRelay(t)
	anon := join(t, r, "anon")
	bob := join(t, r, "bob")
	bob.grant(CanReceive)

	r.disconnect(anon.ID(), io.EOF)
	expectLines(t, "bob", queued(bob))
	if r.conns.len() != 1 {
		t.Errorf("expected 1 connection, got %d", r.conns.len())
	}
}

func TestAcceptNewCapacityExceeded(t *testing.T) {
	r := newTestRelay(t, WithMaxConnections(1))

	client1, relay1 := net.Pipe()
	defer client1.Close()
	first := r.acceptNew(relay1)
	if first == nil {
		t.Fatal("first connection rejected")
	}

	client2, relay2 := net.Pipe()
	defer client2.Close()
	if c := r.acceptNew(relay2); c != nil {
		t.Fatal("second connection accepted over the limit")
	}

	client2.SetReadDeadline(time.Now().Add(time.Second))
	buf, _ := io.ReadAll(client2)
	if string(buf) != textRelayFull+"\n" {
		t.Errorf("expected %q before close, got %q", textRelayFull+"\n", buf)
	}

	if r.conns.len() != 1 {
		t.Errorf("expected 1 connection, got %d", r.conns.len())
	}
	if _, ok := r.conns.get(first.ID()); !ok {
		t.Error("first connection is gone")
	}
	first.closeOutbox()
	first.close()
}

func TestNewInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		option Option
	}{
		{"MaxConnections", WithMaxConnections(0)},
		{"MessageSize", WithMessageSize(1)},
		{"NicknameLength", WithNicknameLength(1)},
		{"QueueSize", WithQueueSize(0)},
		{"WriteTimeout", WithWriteTimeout(0)},
		{"ShutdownTimeout", WithShutdownTimeout(-time.Second)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.option); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}
