package relay

import (
	"github.com/google/uuid"

	"chatrelay/internal/message"
)

// event is what the relay loop waits for. Each source posts its own type.
type event interface {
	isEvent()
}

// listenerReady - a new socket was accepted (TCP listener or gateway).
type listenerReady struct {
	sock Socket
}

// listenerFailed - the listener is gone and no more sockets will arrive.
type listenerFailed struct {
	err error
}

// clientReady - a line arrived from a connection.
type clientReady struct {
	id  uuid.UUID
	msg *message.Message
}

// clientHangup - the peer closed the connection or reading failed.
type clientHangup struct {
	id  uuid.UUID
	err error
}

// announce - operator text to be sent as a system message.
type announce struct {
	text string
}

// snapshotRequest - asks the loop for a copy of the connection table.
type snapshotRequest struct {
	reply chan<- []ConnInfo
}

func (listenerReady) isEvent()   {}
func (listenerFailed) isEvent()  {}
func (clientReady) isEvent()     {}
func (clientHangup) isEvent()    {}
func (announce) isEvent()        {}
func (snapshotRequest) isEvent() {}
