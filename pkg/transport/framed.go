package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// MaxFrameSize bounds a single length-prefixed frame.
const MaxFrameSize = 1 << 24

var ErrFrameTooLarge = errors.New("transport: frame too large")

// Endpoint is the byte stream under a framed connection. net.Conn satisfies it.
type Endpoint interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

// FramedConn carries frames over a byte stream as u32 LE length + body.
type FramedConn struct {
	kind   Kind
	ep     Endpoint
	local  net.Addr
	remote net.Addr
	br     *bufio.Reader

	wmu sync.Mutex
	bw  *bufio.Writer

	qmu           sync.Mutex
	establishedAt time.Time
	lastSeen      time.Time
}

// NewFramedConn wraps ep. local and remote may be nil.
func NewFramedConn(kind Kind, ep Endpoint, local, remote net.Addr) *FramedConn {
	return &FramedConn{
		kind:          kind,
		ep:            ep,
		local:         local,
		remote:        remote,
		br:            bufio.NewReader(ep),
		bw:            bufio.NewWriter(ep),
		establishedAt: time.Now(),
	}
}

// NewNetConn wraps a net.Conn using its own addresses.
func NewNetConn(kind Kind, c net.Conn) *FramedConn {
	return NewFramedConn(kind, c, c.LocalAddr(), c.RemoteAddr())
}

func (f *FramedConn) Kind() Kind           { return f.kind }
func (f *FramedConn) LocalAddr() net.Addr  { return f.local }
func (f *FramedConn) RemoteAddr() net.Addr { return f.remote }
func (f *FramedConn) Close() error         { return f.ep.Close() }

func (f *FramedConn) SetWriteDeadline(t time.Time) error { return f.ep.SetWriteDeadline(t) }

func (f *FramedConn) Quality() Quality {
	f.qmu.Lock()
	defer f.qmu.Unlock()
	return Quality{EstablishedAt: f.establishedAt, LastSeen: f.lastSeen}
}

func (f *FramedConn) touch() {
	f.qmu.Lock()
	f.lastSeen = time.Now()
	f.qmu.Unlock()
}

func (f *FramedConn) SendBytes(b []byte) error {
	if len(b) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	f.wmu.Lock()
	defer f.wmu.Unlock()
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
	if _, err := f.bw.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := f.bw.Write(b); err != nil {
		return err
	}
	if err := f.bw.Flush(); err != nil {
		return err
	}
	f.touch()
	return nil
}

func (f *FramedConn) RecvBytes() ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(f.br, lenbuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint32(lenbuf[:]))
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, err
	}
	f.touch()
	return buf, nil
}
