// Package compress implements the compressed frame format and the worker
// pool that produces it off the engine loop.
package compress

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

// Prefix marks a compressed frame. The rest is base64(gzip(frame)).
const Prefix = "~gz:"

// maxInflated bounds decompressed output.
const maxInflated = 64 << 20

var ErrTooLarge = errors.New("compress: inflated frame too large")

// IsCompressed reports whether frame carries the compression marker.
func IsCompressed(frame []byte) bool { return bytes.HasPrefix(frame, []byte(Prefix)) }

// Encode gzips data and returns the prefixed text frame.
func Encode(data []byte) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	zw, err := gzip.NewWriterLevel(buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, len(Prefix)+base64.StdEncoding.EncodedLen(buf.Len()))
	copy(out, Prefix)
	base64.StdEncoding.Encode(out[len(Prefix):], buf.B)
	return out, nil
}

// Decode reverses Encode. Frames without the marker are returned unchanged.
func Decode(frame []byte) ([]byte, error) {
	if !IsCompressed(frame) {
		return frame, nil
	}
	body := frame[len(Prefix):]
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(body)))
	n, err := base64.StdEncoding.Decode(raw, body)
	if err != nil {
		return nil, fmt.Errorf("compress: base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw[:n]))
	if err != nil {
		return nil, fmt.Errorf("compress: gzip: %w", err)
	}
	defer zr.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := io.Copy(buf, io.LimitReader(zr, maxInflated+1)); err != nil {
		return nil, fmt.Errorf("compress: inflate: %w", err)
	}
	if buf.Len() > maxInflated {
		return nil, ErrTooLarge
	}
	return append([]byte(nil), buf.B...), nil
}
