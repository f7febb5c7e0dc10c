package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"muxlink/pkg/core/ack"
	"muxlink/pkg/protocol"
	"muxlink/pkg/transport"
)

func (c *Client) accept(m *protocol.Message, d *Delivery) {
	c.pending[m.ID] = d
	c.enqueue(m)
}

func (c *Client) enqueue(m *protocol.Message) {
	c.queue.Enqueue(m)
	c.kick()
}

// kick flushes when a full batch is waiting and otherwise makes sure the
// debounce timer is running.
func (c *Client) kick() {
	if c.queue.Len() == 0 {
		return
	}
	if c.queue.Len() >= c.cfg.BatchSize || c.queue.Bytes() >= c.cfg.MaxMessageSize {
		c.flush()
		return
	}
	if !c.batchTimer.armed() {
		c.arm(&c.batchTimer, c.cfg.BatchTimeout(), c.flush)
	}
}

// resume sends what piled up while the connection was down.
func (c *Client) resume() {
	if c.deferred || c.queue.Len() > 0 {
		c.deferred = false
		c.flush()
	}
	c.armSweep()
}

// flush drains one batch and starts writing it. Only one write is in flight
// at a time; the next batch goes out when it completes.
func (c *Client) flush() {
	c.batchTimer.stop()
	if c.queue.Len() == 0 {
		return
	}
	if c.state != StateConnected || c.conn == nil {
		c.deferred = true
		return
	}
	if c.inflight != nil {
		return
	}
	msgs := c.queue.Drain(c.cfg.BatchSize, c.cfg.MaxMessageSize)
	b := protocol.NewBatch(msgs, time.Now())
	if c.shaper != nil {
		if ok, wait := c.shaper.Allow(int64(b.TotalSize)); !ok {
			c.queue.Requeue(msgs)
			c.arm(&c.batchTimer, wait, c.flush)
			return
		}
	}
	data, err := b.Encode(c.codec)
	if err != nil {
		for _, m := range msgs {
			c.settle(m.ID, &SerializationError{Type: m.Type, Err: err})
		}
		c.fail(&SerializationError{Type: protocol.TypeBatch, Err: err})
		c.kick()
		return
	}
	c.inflight = b
	c.transmit(c.conn, b, data)
}

type sendResult struct {
	bytes       int
	compressed  bool
	compressErr error
	err         error
}

// transmit compresses and writes one frame off the loop.
func (c *Client) transmit(conn transport.Conn, b *protocol.Batch, data []byte) {
	compress := c.pool != nil && len(data) > c.cfg.CompressionThreshold
	go func() {
		var res sendResult
		frame := data
		if compress {
			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.CompressionTimeout())
			out, err := c.pool.Compress(ctx, data)
			cancel()
			switch {
			case err != nil:
				res.compressErr = err
			case len(out) < len(data):
				frame = out
				res.compressed = true
			}
		}
		if wt := c.cfg.WriteTimeout(); wt > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(wt))
		}
		res.err = conn.SendBytes(frame)
		res.bytes = len(frame)
		c.post(func() { c.sent(b, res) })
	}()
}

func (c *Client) sent(b *protocol.Batch, res sendResult) {
	if b != c.inflight {
		// The connection was dropped while writing; the batch was requeued.
		return
	}
	c.inflight = nil
	if res.compressErr != nil {
		c.stats.CompressionFallback()
		c.fail(&CompressionWorkerError{Err: res.compressErr})
	}
	if res.err != nil {
		if errors.Is(res.err, transport.ErrFrameTooLarge) {
			err := &TransportError{Op: "write", Err: res.err}
			for _, m := range b.Messages {
				c.acks.Ack(m.ID)
				c.settle(m.ID, err)
			}
			c.fail(err)
			c.kick()
			return
		}
		c.queue.Requeue(b.Messages)
		c.log.Warn("write failed", zap.Int("messages", len(b.Messages)), zap.Error(res.err))
		c.connLost(c.gen, &TransportError{Op: "write", Err: res.err})
		return
	}
	if res.compressed {
		c.stats.Compressed()
	}
	c.stats.BatchSent(len(b.Messages), res.bytes)
	now := time.Now()
	for _, m := range b.Messages {
		if !m.ExpectAck {
			c.settle(m.ID, nil)
			continue
		}
		if _, ok := c.pending[m.ID]; !ok {
			continue
		}
		c.acks.Track(m, m.Timeout, now)
	}
	c.armSweep()
	c.kick()
}

func (c *Client) armSweep() {
	if c.acks.Len() == 0 || c.sweepTimer.armed() {
		return
	}
	c.arm(&c.sweepTimer, c.acks.MinTimeout(), c.sweep)
}

// sweep retries or fails every message whose ack is overdue.
func (c *Client) sweep() {
	now := time.Now()
	for _, p := range c.acks.Expired(now) {
		m := p.Msg
		if _, ok := c.pending[m.ID]; !ok {
			continue
		}
		if m.RetryCount < m.MaxRetries {
			delay := ack.Backoff(c.cfg.RetryBaseDelay(), m.RetryCount, c.cfg.RetryJitter())
			c.stats.Retry()
			c.log.Debug("ack overdue, retrying", zap.String("id", m.ID), zap.String("type", m.Type),
				zap.Int("retry", m.RetryCount+1), zap.Duration("delay", delay))
			c.acks.Retry(m.Retry(), delay, func(id string) {
				c.post(func() { c.retryDue(id) })
			})
			continue
		}
		// The caller learns of the timeout through its delivery only.
		c.stats.Failure()
		c.stats.Error()
		c.log.Warn("ack timeout", zap.String("id", m.ID), zap.String("type", m.Type), zap.Int("retries", m.RetryCount))
		c.settle(m.ID, &AckTimeoutError{ID: m.ID, Type: m.Type, Retries: m.RetryCount})
	}
	c.armSweep()
}

func (c *Client) retryDue(id string) {
	m, ok := c.acks.Take(id)
	if !ok {
		return
	}
	c.enqueue(m)
}

// onAck settles a delivery wherever its message currently is: awaiting the
// ack, parked for retry, or queued for retransmission.
func (c *Client) onAck(id string) {
	c.acks.Ack(id)
	c.settle(id, nil)
}
