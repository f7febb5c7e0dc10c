package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"muxlink/pkg/protocol/codec"
)

// Frame is the on-wire object. A single message uses ID/Type/Payload;
// a batch envelope has Type "batch" with BatchID, Messages and TotalSize.
type Frame struct {
	ID        string     `json:"id,omitempty" cbor:"id,omitempty"`
	Type      string     `json:"type" cbor:"type"`
	Payload   RawPayload `json:"payload,omitempty" cbor:"payload,omitempty"`
	Timestamp int64      `json:"timestamp" cbor:"timestamp"`
	Ack       bool       `json:"ack,omitempty" cbor:"ack,omitempty"`

	BatchID   string  `json:"batchId,omitempty" cbor:"batchId,omitempty"`
	Messages  []Frame `json:"messages,omitempty" cbor:"messages,omitempty"`
	TotalSize int     `json:"totalSize,omitempty" cbor:"totalSize,omitempty"`
}

// Batch is a group of messages transmitted in one frame.
type Batch struct {
	ID        string
	Messages  []*Message
	TotalSize int
	CreatedAt time.Time
}

// NewBatch groups msgs; TotalSize is the sum of their encoded sizes.
func NewBatch(msgs []*Message, now time.Time) *Batch {
	b := &Batch{ID: uuid.NewString(), Messages: msgs, CreatedAt: now}
	for _, m := range msgs {
		b.TotalSize += m.Size
	}
	return b
}

// Frame returns the wire form: a single-message frame for one message,
// otherwise a batch envelope.
func (b *Batch) Frame() Frame {
	if len(b.Messages) == 1 {
		return b.Messages[0].Frame()
	}
	msgs := make([]Frame, len(b.Messages))
	for i, m := range b.Messages {
		msgs[i] = m.Frame()
	}
	return Frame{
		Type:      TypeBatch,
		BatchID:   b.ID,
		Messages:  msgs,
		TotalSize: b.TotalSize,
		Timestamp: b.CreatedAt.UnixMilli(),
	}
}

// Encode serializes a batch with the wire codec.
func (b *Batch) Encode(c codec.Codec) ([]byte, error) { return c.Marshal(b.Frame()) }

var errNoType = errors.New("frame has no type")

// DecodeFrame parses one frame and flattens batch envelopes into messages.
func DecodeFrame(c codec.Codec, data []byte) ([]*Inbound, error) {
	var f Frame
	if err := c.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return nil, errNoType
	}
	if f.Type != TypeBatch {
		return []*Inbound{inbound(c, f, "")}, nil
	}
	out := make([]*Inbound, 0, len(f.Messages))
	for _, m := range f.Messages {
		if m.Type == "" {
			return nil, fmt.Errorf("batch %s: %w", f.BatchID, errNoType)
		}
		out = append(out, inbound(c, m, f.BatchID))
	}
	return out, nil
}

// EncodeFrame serializes a frame built by a peer (acks, pongs, echoes).
func EncodeFrame(c codec.Codec, f Frame) ([]byte, error) { return c.Marshal(f) }

func inbound(c codec.Codec, f Frame, batchID string) *Inbound {
	return &Inbound{
		ID:           f.ID,
		Type:         f.Type,
		Payload:      f.Payload,
		Timestamp:    f.Timestamp,
		AckRequested: f.Ack,
		BatchID:      batchID,
		codec:        c,
	}
}

// NewControlFrame builds a frame with a freshly encoded Control payload.
func NewControlFrame(c codec.Codec, typ string, ctl Control, now time.Time) (Frame, error) {
	raw, err := c.Marshal(ctl)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: uuid.NewString(), Type: typ, Payload: raw, Timestamp: now.UnixMilli()}, nil
}
