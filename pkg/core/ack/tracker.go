// Package ack tracks transmitted messages that await an acknowledgement.
package ack

import (
	"math"
	"math/rand"
	"time"

	"muxlink/pkg/protocol"
)

// Pending is one transmitted message awaiting its ack.
type Pending struct {
	Msg      *protocol.Message
	SentAt   time.Time
	Deadline time.Time
}

type retry struct {
	msg   *protocol.Message
	timer *time.Timer
}

// Tracker is owned by the engine loop and is not safe for concurrent use.
type Tracker struct {
	pending    map[string]*Pending
	retrying   map[string]*retry
	minTimeout time.Duration
}

func New() *Tracker {
	return &Tracker{pending: make(map[string]*Pending), retrying: make(map[string]*retry)}
}

// Track registers msg as sent at now with the given timeout.
func (t *Tracker) Track(msg *protocol.Message, timeout time.Duration, now time.Time) {
	t.pending[msg.ID] = &Pending{Msg: msg, SentAt: now, Deadline: now.Add(timeout)}
	if t.minTimeout == 0 || timeout < t.minTimeout {
		t.minTimeout = timeout
	}
}

// Ack settles id. It reports whether the id was pending or waiting to be
// retried; either way no further retry for id will happen.
func (t *Tracker) Ack(id string) bool {
	found := false
	if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		found = true
	}
	if r, ok := t.retrying[id]; ok {
		r.timer.Stop()
		delete(t.retrying, id)
		found = true
	}
	return found
}

// Expired removes and returns every entry whose deadline has passed.
// The sweep visits each pending entry once.
func (t *Tracker) Expired(now time.Time) []*Pending {
	var out []*Pending
	for id, p := range t.pending {
		if !now.Before(p.Deadline) {
			out = append(out, p)
			delete(t.pending, id)
		}
	}
	return out
}

// Retry parks msg until delay elapses and then calls fire with its id.
// The engine must call Take from fire; an ack in between cancels the retry.
func (t *Tracker) Retry(msg *protocol.Message, delay time.Duration, fire func(id string)) {
	if old, ok := t.retrying[msg.ID]; ok {
		old.timer.Stop()
	}
	id := msg.ID
	t.retrying[id] = &retry{msg: msg, timer: time.AfterFunc(delay, func() { fire(id) })}
}

// Take returns the parked retry for id, or false if it was acked or cleared.
func (t *Tracker) Take(id string) (*protocol.Message, bool) {
	r, ok := t.retrying[id]
	if !ok {
		return nil, false
	}
	delete(t.retrying, id)
	return r.msg, true
}

// Clear drops all state, stops retry timers and returns every message that
// was pending or parked.
func (t *Tracker) Clear() []*protocol.Message {
	out := make([]*protocol.Message, 0, len(t.pending)+len(t.retrying))
	for _, p := range t.pending {
		out = append(out, p.Msg)
	}
	for _, r := range t.retrying {
		r.timer.Stop()
		out = append(out, r.msg)
	}
	clear(t.pending)
	clear(t.retrying)
	t.minTimeout = 0
	return out
}

// Len is the number of transmitted messages awaiting an ack.
func (t *Tracker) Len() int { return len(t.pending) }

// Parked is the number of messages waiting for their retry delay.
func (t *Tracker) Parked() int { return len(t.retrying) }

// MinTimeout is the shortest timeout tracked since the last Clear.
func (t *Tracker) MinTimeout() time.Duration { return t.minTimeout }

// Backoff returns 2^retryCount * base plus a random jitter in [0, jitter).
// The result saturates at math.MaxInt64 instead of overflowing.
func Backoff(base time.Duration, retryCount int, jitter time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		retryCount = 30
	}
	if base > math.MaxInt64>>uint(retryCount) {
		return math.MaxInt64
	}
	d := base << uint(retryCount)
	if jitter > 0 {
		j := time.Duration(rand.Int63n(int64(jitter)))
		if d > math.MaxInt64-j {
			return math.MaxInt64
		}
		d += j
	}
	return d
}
