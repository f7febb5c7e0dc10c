//go:build windows

package transports

import (
	"muxlink/pkg/transport"
	"muxlink/pkg/transport/winpipe"
)

func newWinPipeTransport() (transport.Transport, error) { return winpipe.New(), nil }
