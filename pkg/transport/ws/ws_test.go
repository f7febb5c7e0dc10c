package ws

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestSplitAddress(t *testing.T) {
	h, p := splitAddress("ws://127.0.0.1:8080/ws")
	require.Equal(t, "127.0.0.1:8080", h)
	require.Equal(t, "/ws", p)
	h, p = splitAddress(":9000")
	require.Equal(t, ":9000", h)
	require.Equal(t, "/", p)
	h, p = splitAddress("localhost:1/x/y")
	require.Equal(t, "localhost:1", h)
	require.Equal(t, "/x/y", p)
}

func TestWebSocketRoundtrip(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := tr.Listen(ctx, "127.0.0.1:0/ws")
	require.NoError(t, err)
	defer l.Close()

	cli, err := tr.Dial(ctx, "ws://"+l.Addr().String()+"/ws")
	require.NoError(t, err)
	defer cli.Close()
	srv, err := l.Accept(ctx)
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, cli.SendBytes([]byte(`{"type":"hello"}`)))
	got, err := srv.RecvBytes()
	require.NoError(t, err)
	require.Equal(t, `{"type":"hello"}`, string(got))

	require.NoError(t, srv.SendBytes([]byte{0xa1, 0xff, 0xfe}))
	got, err = cli.RecvBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0xa1, 0xff, 0xfe}, got)

	require.NoError(t, srv.Close())
	_, err = cli.RecvBytes()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
