package ack

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"muxlink/pkg/protocol"
)

func m(id string) *protocol.Message { return &protocol.Message{ID: id, Type: "t", ExpectAck: true} }

func TestTrackAckExpire(t *testing.T) {
	tr := New()
	now := time.Unix(100, 0)
	tr.Track(m("a"), time.Second, now)
	tr.Track(m("b"), 100*time.Millisecond, now)
	require.Equal(t, 2, tr.Len())
	require.Equal(t, 100*time.Millisecond, tr.MinTimeout())

	require.Empty(t, tr.Expired(now.Add(50*time.Millisecond)))

	exp := tr.Expired(now.Add(100 * time.Millisecond))
	require.Len(t, exp, 1)
	require.Equal(t, "b", exp[0].Msg.ID)
	require.Equal(t, 1, tr.Len())

	require.True(t, tr.Ack("a"))
	require.False(t, tr.Ack("a"))
	require.Equal(t, 0, tr.Len())
}

func TestAckCancelsParkedRetry(t *testing.T) {
	tr := New()
	fired := make(chan string, 1)
	tr.Retry(m("x").Retry(), 20*time.Millisecond, func(id string) { fired <- id })
	require.Equal(t, 1, tr.Parked())

	require.True(t, tr.Ack("x"))
	_, ok := tr.Take("x")
	require.False(t, ok)

	select {
	case id := <-fired:
		t.Fatalf("stale retry fired for %s", id)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestRetryFiresAndTakes(t *testing.T) {
	tr := New()
	fired := make(chan string, 1)
	tr.Retry(m("y").Retry(), time.Millisecond, func(id string) { fired <- id })

	select {
	case id := <-fired:
		msg, ok := tr.Take(id)
		require.True(t, ok)
		require.Equal(t, 1, msg.RetryCount)
	case <-time.After(time.Second):
		t.Fatal("retry did not fire")
	}
	_, ok := tr.Take("y")
	require.False(t, ok)
}

func TestClear(t *testing.T) {
	tr := New()
	tr.Track(m("a"), time.Second, time.Now())
	tr.Retry(m("b"), time.Hour, func(string) {})
	got := tr.Clear()
	require.Len(t, got, 2)
	require.Equal(t, 0, tr.Len())
	require.Equal(t, 0, tr.Parked())
	require.Zero(t, tr.MinTimeout())
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, 100*time.Millisecond, Backoff(base, 0, 0))
	require.Equal(t, 200*time.Millisecond, Backoff(base, 1, 0))
	require.Equal(t, 800*time.Millisecond, Backoff(base, 3, 0))
	for i := 0; i < 50; i++ {
		d := Backoff(base, 1, 50*time.Millisecond)
		require.GreaterOrEqual(t, d, 200*time.Millisecond)
		require.Less(t, d, 250*time.Millisecond)
	}
}

func TestBackoffSaturates(t *testing.T) {
	require.Equal(t, time.Duration(math.MaxInt64), Backoff(10*time.Second, 30, 0))
	require.Equal(t, time.Duration(math.MaxInt64), Backoff(10*time.Second, 100, time.Second))
}
