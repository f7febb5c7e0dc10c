package client

import (
	"time"

	"go.uber.org/zap"

	"muxlink/pkg/protocol"
)

func (c *Client) armHeartbeat() {
	c.arm(&c.hbTimer, c.hb.Interval(), c.heartbeat)
}

func (c *Client) heartbeat() {
	if c.state != StateConnected {
		return
	}
	now := time.Now()
	if !c.hb.Healthy(now) {
		c.log.Warn("heartbeat overdue", zap.String("url", c.url), zap.Time("lastPong", c.hb.LastPong()))
	}
	sentAt := c.hb.Ping(now)
	c.sendControl(protocol.TypePing, protocol.Control{SentAt: sentAt})
	c.armHeartbeat()
}

// sendControl queues an engine message on the critical lane.
func (c *Client) sendControl(typ string, ctl protocol.Control) {
	m, err := protocol.NewMessage(c.codec, typ, ctl, protocol.PriorityCritical, false, time.Now())
	if err != nil {
		c.fail(&SerializationError{Type: typ, Err: err})
		return
	}
	c.enqueue(m)
}

func (c *Client) onPong(sentAt int64) {
	rtt := c.hb.Pong(sentAt, time.Now())
	c.log.Debug("pong", zap.Duration("rtt", rtt), zap.Duration("avg", c.hb.Average()))
}
