package tcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTCPRoundtrip(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := tr.Listen(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	cli, err := tr.Dial(ctx, l.Addr().String())
	require.NoError(t, err)
	defer cli.Close()
	srv, err := l.Accept(ctx)
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, cli.SendBytes([]byte(`{"type":"ping"}`)))
	got, err := srv.RecvBytes()
	require.NoError(t, err)
	require.Equal(t, `{"type":"ping"}`, string(got))

	require.NoError(t, srv.SendBytes([]byte{0x00, 0xff}))
	got, err = cli.RecvBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff}, got)
}
