package transports

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"muxlink/pkg/transport"
)

func TestForURL(t *testing.T) {
	cases := []struct {
		url  string
		kind transport.Kind
		addr string
	}{
		{"ws://127.0.0.1:8080/ws", transport.KindWebSocket, "ws://127.0.0.1:8080/ws"},
		{"wss://example.com/stream", transport.KindWebSocket, "wss://example.com/stream"},
		{"tcp://127.0.0.1:7000", transport.KindTCP, "127.0.0.1:7000"},
		{"quic://localhost:4433", transport.KindQUIC, "localhost:4433"},
		{"mem://echo", transport.KindMem, "echo"},
	}
	for _, tc := range cases {
		tr, addr, err := ForURL(tc.url)
		require.NoError(t, err, tc.url)
		require.Equal(t, tc.kind, tr.Kind(), tc.url)
		require.Equal(t, tc.addr, addr, tc.url)
	}
}

func TestForURLPipe(t *testing.T) {
	tr, addr, err := ForURL("pipe://./pipe/muxlink")
	if runtime.GOOS != "windows" {
		require.Error(t, err)
		return
	}
	require.NoError(t, err)
	require.Equal(t, transport.KindWinPipe, tr.Kind())
	require.Equal(t, `\\.\pipe\muxlink`, addr)
}

func TestForURLUnknown(t *testing.T) {
	_, _, err := ForURL("smtp://mail")
	var unk ErrUnknownScheme
	require.ErrorAs(t, err, &unk)
}
