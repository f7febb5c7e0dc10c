//go:build windows

// Package winpipe carries length-prefixed frames over Windows named pipes.
package winpipe

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/Microsoft/go-winio"
	"go.uber.org/zap"

	"muxlink/pkg/transport"
)

var ErrClosed = errors.New("winpipe listener closed")

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
	l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{MessageMode: false})
	if err != nil {
		return nil, err
	}
	wl := &listener{l: l, newCh: make(chan transport.Conn, 16), closeCh: make(chan struct{})}
	go wl.acceptLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = wl.Close()
		case <-wl.closeCh:
		}
	}()
	return wl, nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (transport.Conn, error) {
	c, err := winio.DialPipeContext(ctx, pipeName)
	if err != nil {
		return nil, err
	}
	return transport.NewNetConn(transport.KindWinPipe, c), nil
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
		fc := transport.NewNetConn(transport.KindWinPipe, c)
		select {
		case l.newCh <- fc:
		default:
			zap.L().Warn("winpipe accept backlog full; dropping connection")
			_ = fc.Close()
		}
	}
}
