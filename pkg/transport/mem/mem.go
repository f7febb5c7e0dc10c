// Package mem is an in-process transport over net.Pipe, used by tests and
// by mem:// URLs.
package mem

import (
	"context"
	"errors"
	"net"
	"sync"

	"muxlink/pkg/transport"
)

var (
	ErrNoListener     = errors.New("mem: no such listener")
	ErrListenerExists = errors.New("mem: listener already exists")
	ErrClosed         = errors.New("mem: listener closed")
)

// Default is the process-wide instance behind mem:// URLs.
var Default = New()

// Transport is an in-process transport. Listeners are keyed by name.
type Transport struct {
	mu        sync.Mutex
	listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.listeners[name]; ok {
		return nil, ErrListenerExists
	}
	l := &listener{t: t, name: name, newCh: make(chan transport.Conn, 16), closeCh: make(chan struct{})}
	t.listeners[name] = l
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.closeCh:
		}
	}()
	return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Conn, error) {
	t.mu.Lock()
	l := t.listeners[name]
	t.mu.Unlock()
	if l == nil {
		return nil, ErrNoListener
	}
	c1, c2 := net.Pipe()
	srv := transport.NewFramedConn(transport.KindMem, c1, addr(name), addr("client:"+name))
	cli := transport.NewFramedConn(transport.KindMem, c2, addr("client:"+name), addr(name))
	select {
	case l.newCh <- srv:
		return cli, nil
	case <-l.closeCh:
	case <-ctx.Done():
	}
	_ = srv.Close()
	_ = cli.Close()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrClosed
}

type listener struct {
	t         *Transport
	name      string
	newCh     chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr { return addr(l.name) }

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
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.t.mu.Lock()
		if l.t.listeners[l.name] == l {
			delete(l.t.listeners, l.name)
		}
		l.t.mu.Unlock()
	})
	return nil
}

type addr string

func (a addr) Network() string { return "mem" }
func (a addr) String() string  { return string(a) }
