package client

import (
	"context"
	"sync"
	"time"

	"muxlink/pkg/protocol"
)

// Delivery is the outcome of one send. It resolves when the message is
// written (no ack requested), acknowledged, or rejected.
type Delivery struct {
	id   string
	done chan struct{}
	once sync.Once
	err  error
}

func newDelivery(id string) *Delivery { return &Delivery{id: id, done: make(chan struct{})} }

// ID is the message id, empty when the payload could not be encoded.
func (d *Delivery) ID() string { return d.id }

// Done is closed once the delivery is resolved.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Err returns the outcome after Done is closed, nil before.
func (d *Delivery) Err() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the delivery resolves or ctx ends. Giving up on the
// wait does not cancel the message.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Delivery) resolve(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

type sendOptions struct {
	priority   protocol.Priority
	expectAck  bool
	maxRetries int
	timeout    time.Duration
}

// SendOption adjusts a single send.
type SendOption func(*sendOptions)

// WithPriority picks the outgoing lane. The default is medium.
func WithPriority(p protocol.Priority) SendOption {
	return func(o *sendOptions) { o.priority = p }
}

// WithAck asks the peer to acknowledge the message; it is retransmitted
// until acked or out of retries.
func WithAck() SendOption {
	return func(o *sendOptions) { o.expectAck = true }
}

// WithMaxRetries overrides the configured retry limit.
func WithMaxRetries(n int) SendOption {
	return func(o *sendOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithTimeout overrides the configured ack timeout.
func WithTimeout(d time.Duration) SendOption {
	return func(o *sendOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}
