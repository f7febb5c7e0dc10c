package protocol

import (
	"time"

	"github.com/google/uuid"

	"muxlink/pkg/protocol/codec"
)

// Message is an outgoing unit of work owned by the engine. Its payload is
// encoded once at creation; Size is the encoded single-frame size.
type Message struct {
	ID        string
	Type      string
	Payload   RawPayload
	Timestamp int64
	Priority  Priority

	ExpectAck  bool
	RetryCount int
	MaxRetries int
	Timeout    time.Duration

	Size int
}

// NewMessage encodes payload with c and stamps a fresh id. expectAck sets
// the ack flag on the wire, so it is fixed before Size is measured.
func NewMessage(c codec.Codec, typ string, payload any, prio Priority, expectAck bool, now time.Time) (*Message, error) {
	raw, err := c.Marshal(payload)
	if err != nil {
		return nil, err
	}
	m := &Message{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   raw,
		Timestamp: now.UnixMilli(),
		Priority:  prio,
		ExpectAck: expectAck,
	}
	if err := m.measure(c); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Message) measure(c codec.Codec) error {
	b, err := c.Marshal(m.Frame())
	if err != nil {
		return err
	}
	m.Size = len(b)
	return nil
}

// Frame returns the single-message wire form.
func (m *Message) Frame() Frame {
	return Frame{ID: m.ID, Type: m.Type, Payload: m.Payload, Timestamp: m.Timestamp, Ack: m.ExpectAck}
}

// Retry returns a copy with RetryCount incremented. The id is kept so a late
// ack for an earlier transmission still matches.
func (m *Message) Retry() *Message {
	cp := *m
	cp.RetryCount++
	return &cp
}
