// Package message implements the bounded text buffer exchanged between the
// relay and its clients.
package message

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// DefaultCapacity is the buffer size used when no WithCapacity option is given.
const DefaultCapacity = 10240

var (
	// ErrShortWrite - returns when the writer accepted fewer bytes than the message holds.
	ErrShortWrite = errors.New("message: could not send data")

	// ErrTruncated - reported through the logger when appended text does not fit.
	ErrTruncated = errors.New("message too long, will be truncated")
)

// Logger - receives non-fatal warnings about a message.
type Logger interface {
	Println(v ...interface{})
}

// Message holds at most Cap()-1 bytes of text. The last byte of capacity is
// never used, so a full message always has room accounted for a terminator.
type Message struct {
	data     []byte
	capacity int
	logger   Logger
}

// Option configures a Message.
type Option func(m *Message)

// WithCapacity overrides DefaultCapacity. Values below 2 are ignored.
func WithCapacity(capacity int) Option {
	return func(m *Message) {
		if capacity >= 2 {
			m.capacity = capacity
		}
	}
}

// WithLogger sets where truncation warnings go.
func WithLogger(l Logger) Option {
	return func(m *Message) {
		m.logger = l
	}
}

// New builds a message pre-filled with initial, which may be empty.
func New(initial string, options ...Option) *Message {
	m := &Message{capacity: DefaultCapacity}
	for _, option := range options {
		if option != nil {
			option(m)
		}
	}
	if initial != "" {
		m.Append(initial)
	}
	return m
}

func (m *Message) warn(err error) {
	if m.logger == nil {
		return
	}
	m.logger.Println("WARN", err)
}

// Append copies as much of text as fits. It returns false when text was cut.
func (m *Message) Append(text string) bool {
	room := m.capacity - 1 - len(m.data)
	if room <= 0 {
		if text != "" {
			m.warn(ErrTruncated)
			return false
		}
		return true
	}
	if len(text) > room {
		m.data = append(m.data, text[:room]...)
		m.warn(ErrTruncated)
		return false
	}
	m.data = append(m.data, text...)
	return true
}

// StripNewline removes exactly one trailing newline, if any.
func (m *Message) StripNewline() {
	if n := len(m.data); n > 0 && m.data[n-1] == '\n' {
		m.data = m.data[:n-1]
	}
}

// EnsureNewline terminates the message with a newline. A full message gets its
// last byte replaced.
func (m *Message) EnsureNewline() {
	n := len(m.data)
	if n > 0 && m.data[n-1] == '\n' {
		return
	}
	if n == m.capacity-1 {
		m.data[n-1] = '\n'
		m.warn(ErrTruncated)
		return
	}
	m.data = append(m.data, '\n')
}

// Len - number of bytes held.
func (m *Message) Len() int {
	return len(m.data)
}

// Cap - fixed capacity of the message, including the reserved byte.
func (m *Message) Cap() int {
	return m.capacity
}

// Bytes returns a copy of the content.
func (m *Message) Bytes() []byte {
	return append([]byte(nil), m.data...)
}

func (m *Message) String() string {
	return string(m.data)
}

// Clone returns an independent message with the same content and settings.
func (m *Message) Clone() *Message {
	return &Message{
		data:     append([]byte(nil), m.data...),
		capacity: m.capacity,
		logger:   m.logger,
	}
}

// Send writes the message to w. A short write is reported, never retried.
func (m *Message) Send(w io.Writer) error {
	n, err := w.Write(m.data)
	if err != nil {
		return fmt.Errorf("message: send %d bytes: %w", len(m.data), err)
	}
	if n < len(m.data) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(m.data))
	}
	return nil
}

// Receive reads one line from r, up to and including the newline, but never
// more than capacity-1 bytes. The rest of a longer line is left in r and is
// returned by the next call. A read error before any byte arrived returns a
// nil message.
func Receive(r *bufio.Reader, options ...Option) (*Message, error) {
	m := New("", options...)
	limit := m.capacity - 1
	for len(m.data) < limit {
		b, err := r.ReadByte()
		if err != nil {
			if len(m.data) > 0 {
				return m, nil
			}
			return nil, err
		}
		m.data = append(m.data, b)
		if b == '\n' {
			break
		}
	}
	return m, nil
}
