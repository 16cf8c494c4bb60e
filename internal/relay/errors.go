package relay

import "errors"

var (
	// ErrCapacityExceeded - returns when the connection table is full.
	// The rejected socket is closed by the relay.
	ErrCapacityExceeded = errors.New("relay: connection limit exhausted")

	// ErrQueueFull - returns when a connection's outbox cannot take another message.
	// The message is dropped, the connection is kept.
	ErrQueueFull = errors.New("relay: send queue is full")

	// ErrEventSource - returns from Serve when the relay can no longer obtain events,
	// e.g. the listener was closed from the outside. The process cannot continue.
	ErrEventSource = errors.New("relay: could not get events")

	// ErrClosed - returns when the relay has stopped and does not take new sockets.
	ErrClosed = errors.New("relay: closed")
)
