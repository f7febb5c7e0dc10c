// Package quic carries length-prefixed frames over a single bidirectional
// QUIC stream per connection.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math/big"
	"net"
	"sync"
	"time"

	quicgo "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"muxlink/pkg/transport"
)

// ALPN is the application protocol negotiated on every connection.
const ALPN = "muxlink"

var ErrClosed = errors.New("quic listener closed")

// Transport dials and listens for QUIC connections. The dialing side opens
// the frame stream; the listening side accepts it.
type Transport struct {
	// ServerTLS is used by Listen. New fills it with an ephemeral self-signed cert.
	ServerTLS *tls.Config
	// ClientTLS is used by Dial. New skips verification so the self-signed
	// reference peer is reachable; replace it for real deployments.
	ClientTLS *tls.Config
	Config    *quicgo.Config
}

func New() *Transport {
	t := &Transport{
		ClientTLS: &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{ALPN},
			MinVersion:         tls.VersionTLS13,
		},
		Config: &quicgo.Config{KeepAlivePeriod: 15 * time.Second},
	}
	if cert, err := selfSignedCert(); err == nil {
		t.ServerTLS = &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{ALPN},
			MinVersion:   tls.VersionTLS13,
		}
	} else {
		zap.L().Warn("quic: self-signed certificate unavailable", zap.Error(err))
	}
	return t
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
	if t.ServerTLS == nil {
		return nil, errors.New("quic: no server TLS config")
	}
	l, err := quicgo.ListenAddr(address, t.ServerTLS, t.Config)
	if err != nil {
		return nil, err
	}
	ql := &listener{l: l, newCh: make(chan transport.Conn, 16), closeCh: make(chan struct{})}
	lctx, cancel := context.WithCancel(ctx)
	ql.cancel = cancel
	go ql.acceptLoop(lctx)
	go func() {
		<-lctx.Done()
		_ = ql.Close()
	}()
	return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Conn, error) {
	c, err := quicgo.DialAddr(ctx, address, t.ClientTLS, t.Config)
	if err != nil {
		return nil, err
	}
	st, err := c.OpenStreamSync(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "open stream failed")
		return nil, err
	}
	return wrap(c, st), nil
}

type listener struct {
	l         *quicgo.Listener
	newCh     chan transport.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc
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
		l.cancel()
		err = l.l.Close()
	})
	return err
}

func (l *listener) acceptLoop(ctx context.Context) {
	for {
		c, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		go l.acceptStream(ctx, c)
	}
}

// acceptStream waits for the dialer's frame stream. It becomes visible once
// the dialer writes its first frame.
func (l *listener) acceptStream(ctx context.Context, c quicgo.Connection) {
	st, err := c.AcceptStream(ctx)
	if err != nil {
		_ = c.CloseWithError(0, "no stream")
		return
	}
	select {
	case l.newCh <- wrap(c, st):
	default:
		zap.L().Warn("quic accept backlog full; dropping connection", zap.Stringer("raddr", c.RemoteAddr()))
		_ = c.CloseWithError(0, "backlog full")
	}
}

// endpoint closes the whole connection together with its stream.
type endpoint struct {
	quicgo.Stream
	conn quicgo.Connection
}

func (e endpoint) Close() error {
	_ = e.Stream.Close()
	return e.conn.CloseWithError(0, "")
}

func wrap(c quicgo.Connection, st quicgo.Stream) transport.Conn {
	return transport.NewFramedConn(transport.KindQUIC, endpoint{Stream: st, conn: c}, c.LocalAddr(), c.RemoteAddr())
}

// selfSignedCert generates a short-lived self-signed TLS certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
