package transport

import (
	"context"
	"net"
	"time"
)

// Kind identifies the link type.
type Kind int

const (
	KindUnknown Kind = iota
	KindWebSocket
	KindTCP
	KindQUIC
	KindWinPipe
	KindMem
)

func (k Kind) String() string {
	switch k {
	case KindWebSocket:
		return "ws"
	case KindTCP:
		return "tcp"
	case KindQUIC:
		return "quic"
	case KindWinPipe:
		return "winpipe"
	case KindMem:
		return "mem"
	default:
		return "unknown"
	}
}

// Quality captures link timing used for monitoring.
type Quality struct {
	EstablishedAt time.Time
	LastSeen      time.Time
}

// Conn is a bidirectional frame connection.
// Exactly one reader and one writer goroutine are expected.
type Conn interface {
	// SendBytes sends one frame as opaque bytes.
	SendBytes([]byte) error
	// RecvBytes receives the next frame and returns its bytes.
	RecvBytes() ([]byte, error)
	// SetWriteDeadline bounds the next SendBytes; zero clears it.
	SetWriteDeadline(t time.Time) error

	Kind() Kind
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Quality() Quality
	Close() error
}

// Listener accepts inbound connections.
type Listener interface {
	// Accept blocks until an inbound connection is available or ctx is done.
	Accept(ctx context.Context) (Conn, error)
	// Addr returns the local listening address.
	Addr() net.Addr
	// Close stops the listener and unblocks Accept.
	Close() error
}

// Transport provides dialing/listening for a specific link kind.
type Transport interface {
	Kind() Kind
	// Listen starts accepting inbound connections on address (transport-specific format).
	Listen(ctx context.Context, address string) (Listener, error)
	// Dial opens an outbound connection. ctx bounds only the dial itself.
	Dial(ctx context.Context, address string) (Conn, error)
}
