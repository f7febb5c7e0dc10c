// Package ws carries frames as WebSocket messages. UTF-8 frames travel as
// text messages, everything else as binary.
package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"muxlink/pkg/transport"
)

var ErrClosed = errors.New("ws listener closed")

// Transport dials ws:// and wss:// URLs and serves upgrades on Listen.
type Transport struct {
	Dialer   *websocket.Dialer
	Upgrader websocket.Upgrader
	// ReadLimit caps inbound message size; 0 leaves gorilla's default.
	ReadLimit int64
}

func New() *Transport {
	return &Transport{
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ReadLimit: transport.MaxFrameSize,
	}
}

func (t *Transport) Kind() transport.Kind { return transport.KindWebSocket }

// Dial connects to a full ws:// or wss:// URL.
func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	c, resp, err := t.Dialer.DialContext(ctx, address, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return t.wrap(c), nil
}

// Listen serves upgrades on address, which is either host:port[/path] or a
// ws:// URL. The path defaults to "/".
func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	host, path := splitAddress(address)
	var lc net.ListenConfig
	nl, err := lc.Listen(ctx, "tcp", host)
	if err != nil {
		return nil, err
	}
	l := &listener{nl: nl, newCh: make(chan transport.Conn, 16), closeCh: make(chan struct{})}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		c, err := t.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			zap.L().Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			return
		}
		wc := t.wrap(c)
		select {
		case l.newCh <- wc:
		case <-l.closeCh:
			_ = wc.Close()
		}
	})
	l.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Warn("websocket server stopped", zap.Error(err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.closeCh:
		}
	}()
	return l, nil
}

func splitAddress(address string) (host, path string) {
	if strings.Contains(address, "://") {
		if u, err := url.Parse(address); err == nil {
			host, path = u.Host, u.Path
		}
	} else if i := strings.IndexByte(address, '/'); i >= 0 {
		host, path = address[:i], address[i:]
	} else {
		host = address
	}
	if path == "" {
		path = "/"
	}
	return host, path
}

func (t *Transport) wrap(c *websocket.Conn) *conn {
	if t.ReadLimit > 0 {
		c.SetReadLimit(t.ReadLimit)
	}
	return &conn{c: c, establishedAt: time.Now()}
}

type listener struct {
	nl        net.Listener
	srv       *http.Server
	newCh     chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (l *listener) Addr() net.Addr { return l.nl.Addr() }

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
		err = l.srv.Close()
	})
	return err
}

type conn struct {
	c   *websocket.Conn
	wmu sync.Mutex

	qmu           sync.Mutex
	establishedAt time.Time
	lastSeen      time.Time
	closeOnce     sync.Once
}

func (w *conn) Kind() transport.Kind { return transport.KindWebSocket }
func (w *conn) LocalAddr() net.Addr  { return w.c.LocalAddr() }
func (w *conn) RemoteAddr() net.Addr { return w.c.RemoteAddr() }

func (w *conn) SetWriteDeadline(t time.Time) error { return w.c.SetWriteDeadline(t) }

func (w *conn) Quality() transport.Quality {
	w.qmu.Lock()
	defer w.qmu.Unlock()
	return transport.Quality{EstablishedAt: w.establishedAt, LastSeen: w.lastSeen}
}

func (w *conn) touch() {
	w.qmu.Lock()
	w.lastSeen = time.Now()
	w.qmu.Unlock()
}

func (w *conn) SendBytes(b []byte) error {
	mt := websocket.BinaryMessage
	if utf8.Valid(b) {
		mt = websocket.TextMessage
	}
	w.wmu.Lock()
	defer w.wmu.Unlock()
	if err := w.c.WriteMessage(mt, b); err != nil {
		return err
	}
	w.touch()
	return nil
}

func (w *conn) RecvBytes() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, err
	}
	w.touch()
	return data, nil
}

// Close sends a normal-closure control frame and closes the socket.
func (w *conn) Close() error {
	var err error
	w.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = w.c.Close()
	})
	return err
}
