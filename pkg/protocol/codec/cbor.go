package codec

import (
	cbor "github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/proto"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
	pb  Codec
}

// CBOR returns a deterministic CBOR codec (RFC 8949) with core profile.
// Protobuf messages are carried as a CBOR byte string of their binary form.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm, pb: Proto()}, nil
}

func (c cborCodec) ContentType() string { return ContentCBOR }

func (c cborCodec) Marshal(v any) ([]byte, error) {
	if _, ok := v.(proto.Message); ok {
		b, err := c.pb.Marshal(v)
		if err != nil {
			return nil, err
		}
		return c.enc.Marshal(b)
	}
	return c.enc.Marshal(v)
}

func (c cborCodec) Unmarshal(data []byte, v any) error {
	if _, ok := v.(proto.Message); ok {
		var b []byte
		if err := c.dec.Unmarshal(data, &b); err != nil {
			return err
		}
		return c.pb.Unmarshal(b, v)
	}
	return c.dec.Unmarshal(data, v)
}
