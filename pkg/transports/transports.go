// Package transports maps endpoint URLs to transport implementations.
package transports

import (
	"fmt"
	"net/url"
	"strings"

	"muxlink/pkg/transport"
	"muxlink/pkg/transport/mem"
	tquic "muxlink/pkg/transport/quic"
	ttcp "muxlink/pkg/transport/tcp"
	"muxlink/pkg/transport/ws"
)

// ErrUnknownScheme is returned for URLs no transport understands.
type ErrUnknownScheme string

func (e ErrUnknownScheme) Error() string { return "unknown transport scheme: " + string(e) }

// ForURL picks a transport by URL scheme and returns the address in the
// form that transport expects:
//
//	ws://host:port/path, wss://...  websocket, address is the full URL
//	tcp://host:port                 tcp, address host:port
//	quic://host:port                quic, address host:port
//	pipe://./pipe/name              windows named pipe \\.\pipe\name
//	mem://name                      in-process, address name
func ForURL(raw string) (transport.Transport, string, error) {
	scheme, addr, err := Address(raw)
	if err != nil {
		return nil, "", err
	}
	switch scheme {
	case "ws", "wss":
		return ws.New(), addr, nil
	case "tcp":
		return ttcp.New(), addr, nil
	case "quic":
		return tquic.New(), addr, nil
	case "pipe", "winpipe":
		tr, err := newWinPipeTransport()
		if err != nil {
			return nil, "", err
		}
		return tr, addr, nil
	default:
		return mem.Default, addr, nil
	}
}

// Address normalizes the scheme of raw and converts it to the address form
// of its transport without constructing the transport.
func Address(raw string) (scheme, addr string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	scheme = strings.ToLower(u.Scheme)
	switch scheme {
	case "ws", "wss":
		return scheme, u.String(), nil
	case "tcp", "quic":
		return scheme, u.Host, nil
	case "pipe", "winpipe":
		return scheme, `\\` + u.Host + strings.ReplaceAll(u.Path, "/", `\`), nil
	case "mem", "inproc":
		return scheme, u.Host + u.Path, nil
	default:
		return "", "", ErrUnknownScheme(u.Scheme)
	}
}
