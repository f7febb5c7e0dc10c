package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"muxlink/pkg/config"
	"muxlink/pkg/core/ack"
	"muxlink/pkg/transport"
	"muxlink/pkg/transports"
)

func (c *Client) resolve(url string) (transport.Transport, string, error) {
	if c.override != nil {
		_, addr, err := transports.Address(url)
		return c.override, addr, err
	}
	return transports.ForURL(url)
}

func (c *Client) connect(url string, reply chan error) {
	if url == "" {
		url = c.url
	}
	switch c.state {
	case StateConnected:
		if url == c.url {
			reply <- nil
		} else {
			reply <- fmt.Errorf("already connected to %s", c.url)
		}
		return
	case StateConnecting, StateReconnecting:
		c.waiters = append(c.waiters, reply)
		return
	}
	if url == "" {
		reply <- &TransportError{Op: "dial", Err: fmt.Errorf("no url configured")}
		return
	}
	tr, addr, err := c.resolve(url)
	if err != nil {
		reply <- &TransportError{Op: "dial", Err: err}
		return
	}
	c.url, c.dialer, c.addr = url, tr, addr
	c.manual = false
	c.attempts = 0
	c.recovering = false
	c.waiters = append(c.waiters, reply)
	c.transition(StateConnecting)
	c.dial()
}

func (c *Client) dial() {
	c.gen++
	gen, tr, addr := c.gen, c.dialer, c.addr
	c.log.Debug("dialing", zap.String("url", c.url), zap.Stringer("kind", tr.Kind()), zap.Int("attempt", c.attempts))
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.DialTimeout())
	go func() {
		defer cancel()
		conn, err := tr.Dial(ctx, addr)
		if !c.post(func() { c.dialed(gen, conn, err) }) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (c *Client) dialed(gen uint64, conn transport.Conn, err error) {
	if gen != c.gen || c.state != StateConnecting {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.log.Warn("dial failed", zap.String("url", c.url), zap.Error(err))
		c.fail(&TransportError{Op: "dial", Err: err})
		c.lost(err)
		return
	}
	now := time.Now()
	c.conn = conn
	c.attempts = 0
	c.transition(StateConnected)
	if c.recovering {
		c.stats.Reconnect()
		c.recovering = false
	}
	c.stats.Connected(now)
	c.hb.Start(now)
	c.log.Info("connected", zap.String("url", c.url), zap.Stringer("kind", conn.Kind()), zap.Stringer("raddr", conn.RemoteAddr()))
	go c.readLoop(gen, conn)
	c.armHeartbeat()
	c.reply(nil)
	c.obs.connected()
	c.resume()
}

// connLost tears down the connection of generation gen after a read or
// write failure and schedules a reconnect.
func (c *Client) connLost(gen uint64, err error) {
	if gen != c.gen || c.conn == nil {
		return
	}
	c.dropConn()
	c.fail(err)
	c.obs.disconnected(err)
	c.lost(err)
}

// dropConn closes the current connection. Messages of an unfinished write
// go back to the head of their lanes.
func (c *Client) dropConn() {
	c.gen++
	_ = c.conn.Close()
	c.conn = nil
	c.hbTimer.stop()
	c.stats.Disconnected(time.Now())
	if c.inflight != nil {
		c.queue.Requeue(c.inflight.Messages)
		c.inflight = nil
	}
}

// lost schedules the next reconnect attempt or gives up.
func (c *Client) lost(cause error) {
	if c.manual {
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.transition(StateFailed)
		err := &ReconnectExhaustedError{Attempts: c.attempts, Err: cause}
		c.log.Error("giving up", zap.String("url", c.url), zap.Int("attempts", c.attempts), zap.Error(cause))
		c.fail(err)
		c.reply(err)
		return
	}
	delay := reconnectDelay(c.cfg, c.attempts)
	c.attempts++
	c.recovering = true
	c.transition(StateReconnecting)
	c.log.Info("reconnecting", zap.String("url", c.url), zap.Int("attempt", c.attempts), zap.Duration("delay", delay))
	c.arm(&c.reconnectTimer, delay, func() {
		if c.manual || c.state != StateReconnecting {
			return
		}
		c.transition(StateConnecting)
		c.dial()
	})
}

// reconnectDelay is base*2^attempts plus jitter, capped at the configured
// maximum.
func reconnectDelay(cfg config.ClientConfig, attempts int) time.Duration {
	d := ack.Backoff(cfg.ReconnectInterval(), attempts, cfg.ReconnectJitter())
	if ceiling := cfg.MaxReconnectDelay(); ceiling > 0 && d > ceiling {
		d = ceiling
	}
	return d
}

// disconnect stops all activity and rejects every outstanding delivery
// with reason.
func (c *Client) disconnect(reason error) {
	c.manual = true
	c.reconnectTimer.stop()
	c.batchTimer.stop()
	c.sweepTimer.stop()
	c.hbTimer.stop()
	wasConnected := c.conn != nil
	if wasConnected {
		c.dropConn()
	} else {
		c.gen++
	}
	for _, m := range c.queue.DrainAll() {
		c.settle(m.ID, reason)
	}
	for _, m := range c.acks.Clear() {
		c.settle(m.ID, reason)
	}
	for id := range c.pending {
		c.settle(id, reason)
	}
	c.deferred = false
	c.reply(reason)
	c.transition(StateDisconnected)
	c.stats.Reset()
	if wasConnected {
		c.log.Info("disconnected", zap.String("url", c.url))
		c.obs.disconnected(nil)
	}
}
