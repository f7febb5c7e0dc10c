// Package tcp carries length-prefixed frames (u32 LE) over TCP.
package tcp

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"muxlink/pkg/transport"
)

var ErrClosed = errors.New("tcp listener closed")

// Transport implements a stream-based TCP transport with length-prefixed frames.
type Transport struct {
	dialer net.Dialer
}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tl := &listener{l: l, newCh: make(chan transport.Conn, 16), closeCh: make(chan struct{})}
	go tl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = tl.Close()
		case <-tl.closeCh:
		}
	}()
	return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	c, err := t.dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return transport.NewNetConn(transport.KindTCP, c), nil
}

type listener struct {
	l         net.Listener
	newCh     chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closeCh:
		return nil, ErrClosed
	case c := <-l.newCh:
		return c, nil
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closeCh)
		err = l.l.Close()
	})
	return err
}

func (l *listener) acceptLoop() {
	for {
		c, err := l.l.Accept()
		if err != nil {
			return
		}
		fc := transport.NewNetConn(transport.KindTCP, c)
		select {
		case l.newCh <- fc:
		default:
			zap.L().Warn("tcp accept backlog full; dropping connection", zap.Stringer("raddr", c.RemoteAddr()))
			_ = fc.Close()
		}
	}
}
