package relay

import (
	"fmt"
	"time"
)

// Option configures a Relay.
type Option func(r *Relay) error

func setup(r *Relay, options ...Option) error {
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(r); err != nil {
			return err
		}
	}
	return nil
}

// WithMaxConnections - overwrites the default connection limit (64).
func WithMaxConnections(n int) Option {
	return func(r *Relay) error {
		if n <= 0 {
			return fmt.Errorf("relay.WithMaxConnections: invalid limit (%d)", n)
		}
		r.maxConnections = n
		return nil
	}
}

// WithMessageSize - overwrites the default message capacity (10240 bytes).
// Longer lines are split on receive and truncated on send.
func WithMessageSize(size int) Option {
	return func(r *Relay) error {
		if size < 2 {
			return fmt.Errorf("relay.WithMessageSize: invalid size (%d)", size)
		}
		r.messageSize = size
		return nil
	}
}

// WithNicknameLength - overwrites the default nickname bound (64, so 63 bytes are kept).
func WithNicknameLength(n int) Option {
	return func(r *Relay) error {
		if n < 2 {
			return fmt.Errorf("relay.WithNicknameLength: invalid length (%d)", n)
		}
		r.nicknameLength = n
		return nil
	}
}

// WithQueueSize - overwrites the number of messages a connection may have
// waiting to be written before new ones are dropped.
func WithQueueSize(n int) Option {
	return func(r *Relay) error {
		if n <= 0 {
			return fmt.Errorf("relay.WithQueueSize: invalid size (%d)", n)
		}
		r.queueSize = n
		return nil
	}
}

// WithWriteTimeout - overwrites the deadline of a single socket write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(r *Relay) error {
		if timeout <= 0 {
			return fmt.Errorf("relay.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		r.writeTimeout = timeout
		return nil
	}
}

// WithShutdownTimeout - overwrites how long queued messages are flushed on shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Relay) error {
		if timeout < 0 {
			return fmt.Errorf("relay.WithShutdownTimeout: invalid timeout (%v)", timeout)
		}
		r.shutdownTimeout = timeout
		return nil
	}
}

// WithLogger - attach logger for relay events.
func WithLogger(l Logger) Option {
	return func(r *Relay) error {
		r.logger = l
		return nil
	}
}
