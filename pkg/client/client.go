// Package client is the multiplexing transport engine: one logical
// connection carrying many typed message streams with prioritized
// batching, acknowledgement tracking and automatic reconnection.
//
// All engine state is owned by a single loop goroutine. Public methods and
// background goroutines (dialers, readers, writers, timers) hand work to
// the loop as closures, so none of the core components need locks.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"muxlink/pkg/compress"
	"muxlink/pkg/config"
	"muxlink/pkg/core/ack"
	"muxlink/pkg/core/heartbeat"
	"muxlink/pkg/core/priocq"
	"muxlink/pkg/core/stats"
	"muxlink/pkg/protocol"
	"muxlink/pkg/protocol/codec"
	"muxlink/pkg/transport"
)

// Client multiplexes typed messages over one connection.
type Client struct {
	cfg      config.ClientConfig
	log      *zap.Logger
	codec    codec.Codec
	override transport.Transport
	pool     *compress.Pool
	dedupe   *expirable.LRU[string, struct{}]
	handlers *handlerSet
	obs      *observers

	ctx    context.Context
	cancel context.CancelFunc
	ops    chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	final  stats.Snapshot

	// Everything below is owned by the loop goroutine.
	queue   *priocq.MultiLevelQueue
	acks    *ack.Tracker
	hb      *heartbeat.Monitor
	stats   *stats.Collector
	shaper  *priocq.TokenBucket
	pending map[string]*Delivery

	state      State
	url        string
	dialer     transport.Transport
	addr       string
	attempts   int
	manual     bool
	recovering bool
	gen        uint64
	conn       transport.Conn
	waiters    []chan error

	inflight *protocol.Batch
	deferred bool

	batchTimer     loopTimer
	reconnectTimer loopTimer
	hbTimer        loopTimer
	sweepTimer     loopTimer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger; the default is the global zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTransport forces every connection through t regardless of the URL
// scheme. The URL still supplies the address.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) { c.override = t }
}

// New validates cfg and starts the engine loop. The client starts
// disconnected; call Connect.
func New(cfg config.ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wire, err := codec.NewRegistry().Lookup(cfg.WireCodec)
	if err != nil {
		return nil, fmt.Errorf("wire codec: %w", err)
	}
	c := &Client{
		cfg:     cfg,
		log:     zap.L(),
		codec:   wire,
		ops:     make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		queue:   priocq.New(cfg.PriorityQueues),
		acks:    ack.New(),
		hb:      heartbeat.New(cfg.HeartbeatInterval(), heartbeat.DefaultSamples),
		stats:   stats.New(),
		pending: make(map[string]*Delivery),
		url:     cfg.URL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("muxlink")
	c.handlers = newHandlerSet(c.log)
	c.obs = newObservers(c.log)
	if cfg.EnableCompression {
		c.pool = compress.NewPool(cfg.CompressionWorkers)
	}
	if cfg.DedupeWindowMS > 0 {
		c.dedupe = expirable.NewLRU[string, struct{}](cfg.DedupeSize, nil, cfg.DedupeWindow())
	}
	if cfg.EgressBytesPerSec > 0 {
		c.shaper = priocq.NewTokenBucket(cfg.EgressBytesPerSec, 0)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.run()
	go c.obs.run(c.done)
	return c, nil
}

func (c *Client) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.ops:
			fn()
		case <-c.quit:
			c.shutdown()
			return
		}
	}
}

// post hands fn to the loop. It reports false once the client is closed.
func (c *Client) post(fn func()) bool {
	select {
	case c.ops <- fn:
		return true
	case <-c.done:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (c *Client) do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !c.post(func() { fn(); close(ran) }) {
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect opens the connection to url, or to the configured URL when url
// is empty, and waits until it is established, the client gives up
// reconnecting, or ctx ends. While connecting, Connect joins the attempt
// already underway.
func (c *Client) Connect(ctx context.Context, url string) error {
	reply := make(chan error, 1)
	if !c.post(func() { c.connect(url, reply) }) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection without reconnecting. Every queued,
// in-flight and unacknowledged delivery is rejected with ErrDisconnected
// and the statistics are reset.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, func() { c.disconnect(ErrDisconnected) })
}

// Close disconnects, rejects outstanding deliveries with ErrClosed and
// stops the engine. It is safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.quit)
		<-c.done
		c.cancel()
		if c.pool != nil {
			c.pool.Close()
		}
	})
	return nil
}

func (c *Client) shutdown() {
	c.disconnect(ErrClosed)
	c.final = c.snapshot(time.Now())
}

// SendAsync queues a message and returns its delivery immediately. It never
// waits for the connection.
func (c *Client) SendAsync(msgType string, payload any, opts ...SendOption) *Delivery {
	o := sendOptions{
		priority:   protocol.PriorityMedium,
		maxRetries: c.cfg.MaxRetries,
		timeout:    c.cfg.AckTimeout(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if msgType == "" || protocol.IsControl(msgType) {
		d := newDelivery("")
		d.resolve(&SerializationError{Type: msgType, Err: ErrReservedType})
		return d
	}
	if !o.priority.Valid() {
		o.priority = protocol.PriorityMedium
	}
	m, err := protocol.NewMessage(c.codec, msgType, payload, o.priority, o.expectAck, time.Now())
	if err != nil {
		d := newDelivery("")
		d.resolve(&SerializationError{Type: msgType, Err: err})
		return d
	}
	m.MaxRetries = o.maxRetries
	m.Timeout = o.timeout
	d := newDelivery(m.ID)
	if !c.post(func() { c.accept(m, d) }) {
		d.resolve(ErrClosed)
	}
	return d
}

// Send queues a message and waits for its delivery to resolve.
func (c *Client) Send(ctx context.Context, msgType string, payload any, opts ...SendOption) error {
	return c.SendAsync(msgType, payload, opts...).Wait(ctx)
}

// OnMessage registers h for msgType, or for every message with AnyType.
func (c *Client) OnMessage(msgType string, h Handler) Subscription {
	return c.handlers.add(msgType, h)
}

// OffMessage removes a handler registered with OnMessage.
func (c *Client) OffMessage(sub Subscription) bool { return c.handlers.remove(sub) }

// OnConnect is called each time a connection is established. The returned
// function unregisters it.
func (c *Client) OnConnect(fn func()) func() { return c.obs.addConnect(fn) }

// OnDisconnect is called when an established connection ends, with the
// cause or nil for a manual disconnect.
func (c *Client) OnDisconnect(fn func(error)) func() { return c.obs.addDisconnect(fn) }

// OnError receives connection-level errors that have no caller to return
// to, such as transport failures or exhausted reconnects. Errors that belong
// to one message go only to its Delivery.
func (c *Client) OnError(fn func(error)) func() { return c.obs.addError(fn) }

// State returns the connection state.
func (c *Client) State() State {
	s := StateDisconnected
	if err := c.do(context.Background(), func() { s = c.state }); err != nil {
		return StateDisconnected
	}
	return s
}

// Stats returns a snapshot of the engine statistics.
func (c *Client) Stats() stats.Snapshot {
	var s stats.Snapshot
	if err := c.do(context.Background(), func() { s = c.snapshot(time.Now()) }); err != nil {
		return c.final
	}
	return s
}

func (c *Client) snapshot(now time.Time) stats.Snapshot {
	return c.stats.Snapshot(now, stats.Gauges{
		State:          c.state.String(),
		Connected:      c.state == StateConnected,
		Healthy:        c.state == StateConnected && c.hb.Healthy(now),
		QueueDepth:     c.queue.Len(),
		QueueByLane:    laneDepths(c.queue),
		PendingAcks:    c.acks.Len() + c.acks.Parked(),
		AverageLatency: c.hb.Average(),
		LastPongAt:     c.hb.LastPong(),
	})
}

// QueueStatus describes what the engine is holding.
type QueueStatus struct {
	Lanes       map[string]int `json:"lanes"`
	Queued      int            `json:"queued"`
	QueuedBytes int            `json:"queuedBytes"`
	InFlight    int            `json:"inFlight"`
	PendingAcks int            `json:"pendingAcks"`
	Retrying    int            `json:"retrying"`
	Deferred    bool           `json:"deferred"`
}

// QueueStatus reports per-lane depths and in-flight work.
func (c *Client) QueueStatus() QueueStatus {
	var qs QueueStatus
	_ = c.do(context.Background(), func() {
		qs = QueueStatus{
			Lanes:       laneDepths(c.queue),
			Queued:      c.queue.Len(),
			QueuedBytes: c.queue.Bytes(),
			PendingAcks: c.acks.Len(),
			Retrying:    c.acks.Parked(),
			Deferred:    c.deferred,
		}
		if c.inflight != nil {
			qs.InFlight = len(c.inflight.Messages)
		}
	})
	return qs
}

func laneDepths(q *priocq.MultiLevelQueue) map[string]int {
	out := make(map[string]int, protocol.NumPriorities)
	for p, n := range q.Depths() {
		out[p.String()] = n
	}
	return out
}

const flushPoll = 5 * time.Millisecond

// Flush transmits everything queued without waiting for the batch timer
// and returns once nothing is queued, in flight or awaiting an ack. While
// disconnected it waits for the connection.
func (c *Client) Flush(ctx context.Context) error {
	t := time.NewTicker(flushPoll)
	defer t.Stop()
	for {
		idle := false
		err := c.do(ctx, func() {
			if c.queue.Len() > 0 {
				c.flush()
			}
			idle = c.queue.Len() == 0 && c.inflight == nil && c.acks.Len() == 0 && c.acks.Parked() == 0
		})
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
