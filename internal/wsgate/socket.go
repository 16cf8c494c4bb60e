package wsgate

import (
	"bytes"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// socket adapts a WebSocket connection to the relay's line-oriented stream.
// Reads and writes each come from a single goroutine, as gorilla requires.
type socket struct {
	ws      *websocket.Conn
	pending []byte
}

func newSocket(ws *websocket.Conn) *socket {
	ws.SetReadDeadline(time.Time{})
	return &socket{ws: ws}
}

// Read returns the frames of the client as newline-terminated lines.
func (s *socket) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		data = bytes.TrimRight(data, "\r\n")
		s.pending = append(data, '\n')
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Write sends p as one text frame without its trailing newline.
func (s *socket) Write(p []byte) (int, error) {
	if err := s.ws.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(p, []byte("\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *socket) Close() error {
	return s.ws.Close()
}

func (s *socket) RemoteAddr() net.Addr {
	return s.ws.RemoteAddr()
}

func (s *socket) SetWriteDeadline(t time.Time) error {
	return s.ws.SetWriteDeadline(t)
}
