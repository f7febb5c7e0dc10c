package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"muxlink/pkg/config"
	"muxlink/pkg/echo"
	"muxlink/pkg/protocol"
	"muxlink/pkg/transport"
	"muxlink/pkg/transport/mem"
)

const peerURL = "mem://peer"

var errRefused = errors.New("connection refused")

// flakyTransport is a mem transport that counts dials and can refuse them.
type flakyTransport struct {
	*mem.Transport
	dials  atomic.Int32
	refuse atomic.Bool
}

func (f *flakyTransport) Dial(ctx context.Context, addr string) (transport.Conn, error) {
	f.dials.Add(1)
	if f.refuse.Load() {
		return nil, errRefused
	}
	return f.Transport.Dial(ctx, addr)
}

type frame struct {
	raw  []byte
	msgs []*protocol.Inbound
}

type harness struct {
	t      *testing.T
	tr     *flakyTransport
	srv    *echo.Server
	frames chan frame
	ctx    context.Context
}

func newHarness(t *testing.T, opts echo.Options) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := &harness{t: t, tr: &flakyTransport{Transport: mem.New()}, frames: make(chan frame, 1024), ctx: ctx}
	opts.Log = zap.NewNop()
	opts.Observe = func(raw []byte, msgs []*protocol.Inbound) {
		cp := append([]byte(nil), raw...)
		h.frames <- frame{raw: cp, msgs: msgs}
	}
	h.srv = echo.New(opts)
	l, err := h.tr.Listen(ctx, "peer")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() { _ = h.srv.Serve(ctx, l) }()
	return h
}

// testConfig is tuned for fast, deterministic tests: no jitter, short
// timers and heartbeats out of the way.
func testConfig() config.ClientConfig {
	cfg := config.DefaultClient()
	cfg.URL = peerURL
	cfg.ReconnectIntervalMS = 10
	cfg.MaxReconnectDelayMS = 200
	cfg.ReconnectJitterMS = 0
	cfg.DialTimeoutMS = 1000
	cfg.BatchTimeoutMS = 20
	cfg.HeartbeatIntervalMS = 60000
	cfg.RetryBaseDelayMS = 10
	cfg.RetryJitterMS = 0
	cfg.AckTimeoutMS = 500
	return cfg
}

func (h *harness) client(cfg config.ClientConfig) *Client {
	h.t.Helper()
	c, err := New(cfg, WithTransport(h.tr), WithLogger(zap.NewNop()))
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) connect(c *Client) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	require.NoError(h.t, c.Connect(ctx, ""))
}

// next returns the next frame the peer received that carries a non-control
// message.
func (h *harness) next() frame {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-h.frames:
			if len(f.msgs) > 0 && f.msgs[0].Type != protocol.TypePing && f.msgs[0].Type != protocol.TypePong {
				return f
			}
		case <-deadline:
			h.t.Fatal("timed out waiting for a frame")
			return frame{}
		}
	}
}

func (h *harness) noFrame(d time.Duration) {
	h.t.Helper()
	select {
	case f := <-h.frames:
		h.t.Fatalf("unexpected frame with %d messages", len(f.msgs))
	case <-time.After(d):
	}
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 3*time.Second, 5*time.Millisecond,
		"state never became %s", want)
}

// errSink collects errors delivered to OnError.
type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (s *errSink) add(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *errSink) all() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}
