package client

import (
	"go.uber.org/zap"

	"muxlink/pkg/compress"
	"muxlink/pkg/protocol"
	"muxlink/pkg/transport"
)

// control is the part of an inbound message the loop acts on.
type control struct {
	typ string
	ctl protocol.Control
}

// readLoop decodes frames from conn until it fails. Engine messages go to
// the loop; the rest are handed to one handler goroutine per connection, so
// handlers see messages in arrival order and never hold up the reader.
func (c *Client) readLoop(gen uint64, conn transport.Conn) {
	inbox := newMailbox()
	defer inbox.close()
	go c.deliver(inbox)
	for {
		raw, err := conn.RecvBytes()
		if err != nil {
			c.post(func() { c.connLost(gen, &TransportError{Op: "read", Err: err}) })
			return
		}
		msgs, err := c.decode(raw)
		if err != nil {
			c.log.Warn("dropping undecodable frame", zap.Int("bytes", len(raw)), zap.Error(err))
			if !c.post(func() { c.fail(&SerializationError{Type: "frame", Err: err}) }) {
				return
			}
			continue
		}
		fresh, dups := c.filterSeen(msgs)
		ctls := make([]control, 0, len(fresh))
		for _, m := range fresh {
			ctl := m.Control()
			if ctl != (protocol.Control{}) || m.Type == protocol.TypePing || m.Type == protocol.TypePong {
				ctls = append(ctls, control{typ: m.Type, ctl: ctl})
			}
		}
		n, size := len(msgs), len(raw)
		if !c.post(func() { c.received(n, size, dups, ctls) }) {
			return
		}
		for _, m := range fresh {
			if protocol.IsControl(m.Type) {
				continue
			}
			inbox.put(m)
		}
	}
}

func (c *Client) deliver(inbox *mailbox) {
	for {
		m, ok := inbox.take()
		if !ok {
			return
		}
		c.handlers.dispatch(c.ctx, m)
	}
}

func (c *Client) decode(raw []byte) ([]*protocol.Inbound, error) {
	data, err := compress.Decode(raw)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeFrame(c.codec, data)
}

// filterSeen drops messages whose id was seen within the dedupe window.
func (c *Client) filterSeen(msgs []*protocol.Inbound) ([]*protocol.Inbound, int) {
	if c.dedupe == nil {
		return msgs, 0
	}
	out := msgs[:0:0]
	dups := 0
	for _, m := range msgs {
		if m.ID != "" {
			if c.dedupe.Contains(m.ID) {
				dups++
				continue
			}
			c.dedupe.Add(m.ID, struct{}{})
		}
		out = append(out, m)
	}
	return out, dups
}

func (c *Client) received(n, size, dups int, ctls []control) {
	c.stats.Received(n, size)
	for i := 0; i < dups; i++ {
		c.stats.Duplicate()
	}
	for _, m := range ctls {
		switch {
		case m.typ == protocol.TypePong:
			c.onPong(m.ctl.SentAt)
		case m.typ == protocol.TypePing:
			c.sendControl(protocol.TypePong, protocol.Control{SentAt: m.ctl.SentAt})
		case m.ctl.Ack != "":
			c.onAck(m.ctl.Ack)
		}
	}
}
