package protocol

import (
	"muxlink/pkg/protocol/codec"
)

// RawPayload holds a payload already encoded with the wire codec. It is
// embedded verbatim in JSON and CBOR frames.
type RawPayload []byte

var (
	jsonNull = []byte("null")
	cborNull = []byte{0xf6}
)

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return jsonNull, nil
	}
	return p, nil
}

func (p *RawPayload) UnmarshalJSON(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

func (p RawPayload) MarshalCBOR() ([]byte, error) {
	if len(p) == 0 {
		return cborNull, nil
	}
	return p, nil
}

func (p *RawPayload) UnmarshalCBOR(b []byte) error {
	*p = append((*p)[:0], b...)
	return nil
}

// Control is the payload shape of engine-level messages: acks carry Ack,
// ping/pong carry SentAt (unix ms).
type Control struct {
	Ack    string `json:"ack,omitempty" cbor:"ack,omitempty"`
	SentAt int64  `json:"sentAt,omitempty" cbor:"sentAt,omitempty"`
}

// ParseControl extracts the control fields of a payload. Payloads that are
// not objects, or whose fields have other types, yield a zero Control.
func ParseControl(c codec.Codec, p RawPayload) Control {
	var ctl Control
	if len(p) == 0 {
		return ctl
	}
	if err := c.Unmarshal(p, &ctl); err != nil {
		return Control{}
	}
	return ctl
}

// Inbound is a decoded message delivered to handlers.
type Inbound struct {
	ID           string
	Type         string
	Payload      RawPayload
	Timestamp    int64
	AckRequested bool
	// BatchID is set when the message arrived inside a batch frame.
	BatchID string

	codec codec.Codec
}

// Decode unmarshals the payload into v using the wire codec.
func (m *Inbound) Decode(v any) error { return m.codec.Unmarshal(m.Payload, v) }

// Control returns the engine control fields carried by the payload.
func (m *Inbound) Control() Control { return ParseControl(m.codec, m.Payload) }
