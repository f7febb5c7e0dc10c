package client

import (
	"time"

	"go.uber.org/zap"
)

// loopTimer runs a callback on the loop after a delay. Stopping or
// re-arming it also voids a callback that already fired but has not run.
type loopTimer struct {
	t   *time.Timer
	seq uint64
}

func (lt *loopTimer) armed() bool { return lt.t != nil }

func (lt *loopTimer) stop() {
	if lt.t != nil {
		lt.t.Stop()
		lt.t = nil
	}
	lt.seq++
}

func (c *Client) arm(lt *loopTimer, d time.Duration, fn func()) {
	lt.stop()
	seq := lt.seq
	lt.t = time.AfterFunc(d, func() {
		c.post(func() {
			if lt.seq != seq {
				return
			}
			lt.t = nil
			fn()
		})
	})
}

func (c *Client) transition(next State) bool {
	if c.state == next {
		return true
	}
	if !c.state.CanTransition(next) {
		c.log.Error("illegal state transition", zap.Stringer("from", c.state), zap.Stringer("to", next))
		return false
	}
	c.log.Debug("state", zap.Stringer("from", c.state), zap.Stringer("to", next))
	c.state = next
	return true
}

// fail counts err and hands it to the error observers.
func (c *Client) fail(err error) {
	c.stats.Error()
	c.log.Warn("engine error", zap.Error(err))
	c.obs.failed(err)
}

// settle resolves the delivery for id, if it is still pending.
func (c *Client) settle(id string, err error) {
	d, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	d.resolve(err)
}

// reply answers every Connect call waiting on the current attempt.
func (c *Client) reply(err error) {
	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}
