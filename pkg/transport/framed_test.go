package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFramedConnRoundtrip(t *testing.T) {
	a, b := net.Pipe()
	ca, cb := NewNetConn(KindMem, a), NewNetConn(KindMem, b)
	defer ca.Close()
	defer cb.Close()

	go func() {
		_ = ca.SendBytes([]byte("hello"))
		_ = ca.SendBytes(nil)
	}()
	got, err := cb.RecvBytes()
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
	got, err = cb.RecvBytes()
	require.NoError(t, err)
	require.Empty(t, got)
	require.False(t, cb.Quality().LastSeen.IsZero())
}

func TestFramedConnWriteDeadline(t *testing.T) {
	a, b := net.Pipe()
	ca := NewNetConn(KindMem, a)
	defer ca.Close()
	defer b.Close()

	require.NoError(t, ca.SetWriteDeadline(time.Now().Add(20*time.Millisecond)))
	err := ca.SendBytes([]byte("nobody reads"))
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a, b := net.Pipe()
	defer b.Close()
	id := r.Add(NewNetConn(KindTCP, a))
	require.Equal(t, 1, r.Len())
	require.Equal(t, []string{id}, r.IDs())
	require.Contains(t, id, "tcp:")

	require.Equal(t, 1, r.CloseAll())
	require.Equal(t, 0, r.Len())
	_, err := a.Write([]byte("x"))
	require.Error(t, err)
}
