package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"muxlink/pkg/protocol"
	"muxlink/pkg/protocol/codec"
	"muxlink/pkg/transport"
	"muxlink/pkg/transport/mem"
)

// rawPeer accepts one connection and lets the test drive it frame by frame.
func rawPeer(t *testing.T, c *Client, tr *mem.Transport) transport.Conn {
	t.Helper()
	ctx := waitCtx(t)
	l, err := tr.Listen(ctx, "peer")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	connected := make(chan error, 1)
	go func() { connected <- c.Connect(ctx, "") }()
	conn, err := l.Accept(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, <-connected)
	return conn
}

func TestInboundControlAndDuplicates(t *testing.T) {
	tr := mem.New()
	c, err := New(testConfig(), WithTransport(tr), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer c.Close()
	seen := make(chan string, 8)
	c.OnMessage("event", HandlerFunc(func(_ context.Context, m *protocol.Inbound) error {
		seen <- m.ID
		return nil
	}))
	peer := rawPeer(t, c, tr)

	jc := codec.JSON()
	recv := func() *protocol.Inbound {
		raw, err := peer.RecvBytes()
		require.NoError(t, err)
		msgs, err := protocol.DecodeFrame(jc, raw)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		return msgs[0]
	}
	send := func(f protocol.Frame) {
		b, err := protocol.EncodeFrame(jc, f)
		require.NoError(t, err)
		require.NoError(t, peer.SendBytes(b))
	}

	// Any message type carrying an ack field settles the delivery.
	d := c.SendAsync("job", "x", WithAck())
	require.Equal(t, d.ID(), recv().ID)
	ack, err := protocol.NewControlFrame(jc, "result", protocol.Control{Ack: d.ID()}, time.Now())
	require.NoError(t, err)
	send(ack)
	require.NoError(t, d.Wait(waitCtx(t)))

	ev := protocol.Frame{ID: "evt-1", Type: "event", Payload: protocol.RawPayload(`"a"`), Timestamp: time.Now().UnixMilli()}
	send(ev)
	send(ev)

	ping, err := protocol.NewControlFrame(jc, protocol.TypePing, protocol.Control{SentAt: 42}, time.Now())
	require.NoError(t, err)
	send(ping)
	pong := recv()
	require.Equal(t, protocol.TypePong, pong.Type)
	require.EqualValues(t, 42, pong.Control().SentAt)

	require.Equal(t, "evt-1", <-seen)
	select {
	case id := <-seen:
		t.Fatalf("duplicate %s delivered", id)
	case <-time.After(50 * time.Millisecond):
	}

	s := c.Stats()
	require.EqualValues(t, 1, s.DuplicatesDropped)
	require.EqualValues(t, 4, s.MessagesReceived)
}

func TestUndecodableFrameIsCounted(t *testing.T) {
	tr := mem.New()
	c, err := New(testConfig(), WithTransport(tr), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer c.Close()
	var sink errSink
	c.OnError(sink.add)
	peer := rawPeer(t, c, tr)

	require.NoError(t, peer.SendBytes([]byte("{not json")))
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	var se *SerializationError
	require.ErrorAs(t, sink.all()[0], &se)
	require.Equal(t, StateConnected, c.State())
	require.EqualValues(t, 1, c.Stats().ErrorCount)
}

func TestMailboxKeepsOrderAndDrainsAfterClose(t *testing.T) {
	b := newMailbox()
	for _, id := range []string{"a", "b", "c"} {
		b.put(&protocol.Inbound{ID: id})
	}
	b.close()

	var ids []string
	for {
		m, ok := b.take()
		if !ok {
			break
		}
		ids = append(ids, m.ID)
	}
	require.Equal(t, []string{"a", "b", "c"}, ids)
}
