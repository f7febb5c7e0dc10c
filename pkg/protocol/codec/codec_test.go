package codec

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestJSONCodec(t *testing.T) {
	c := JSON()
	in := map[string]any{"a": 1, "b": "x"}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["a"].(float64) != 1 || out["b"].(string) != "x" {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestJSONCodecProtoPayload(t *testing.T) {
	c := JSON()
	s, err := structpb.NewStruct(map[string]any{"speaker": "ana", "seq": 3})
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	b, err := c.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if b[0] != '{' {
		t.Fatalf("expected protojson object, got %q", b)
	}
	var out structpb.Struct
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Fields["speaker"].GetStringValue() != "ana" || out.Fields["seq"].GetNumberValue() != 3 {
		t.Fatalf("roundtrip mismatch: %v", out.String())
	}
}

func TestCBORCodec(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	in := map[string]any{"n": 42}
	b, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if n, ok := out["n"].(uint64); !ok || n != 42 {
		t.Fatalf("roundtrip mismatch: %#v", out)
	}
}

func TestCBORCodecProtoPayload(t *testing.T) {
	c, err := CBOR()
	if err != nil {
		t.Fatalf("new cbor: %v", err)
	}
	s, _ := structpb.NewStruct(map[string]any{"k": "v"})
	b, err := c.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out structpb.Struct
	if err := c.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Fields["k"].GetStringValue() != "v" {
		t.Fatalf("roundtrip mismatch")
	}
}

func TestProtoCodecRejectsPlainValues(t *testing.T) {
	c := Proto()
	if _, err := c.Marshal(map[string]any{"k": "v"}); err == nil {
		t.Fatalf("expected error for non-proto value")
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	for name, want := range map[string]string{
		"":             ContentJSON,
		"JSON":         ContentJSON,
		"cbor":         ContentCBOR,
		"protobuf":     ContentProto,
		ContentCBOR:    ContentCBOR,
	} {
		c, err := r.Lookup(name)
		if err != nil {
			t.Fatalf("lookup %q: %v", name, err)
		}
		if c.ContentType() != want {
			t.Fatalf("lookup %q: got %s want %s", name, c.ContentType(), want)
		}
	}
	if _, err := r.Lookup("xml"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}
