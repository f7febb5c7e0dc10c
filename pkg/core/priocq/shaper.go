package priocq

import (
	"sync"
	"time"
)

// TokenBucket is a simple token bucket used to cap egress bytes per second.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int64
	tokens   int64
	rate     int64 // tokens per second
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket returns a full bucket. capacity defaults to one second of rate.
func NewTokenBucket(ratePerSec, capacity int64) *TokenBucket {
	if capacity <= 0 {
		capacity = ratePerSec
	}
	b := &TokenBucket{capacity: capacity, tokens: capacity, rate: ratePerSec, now: time.Now}
	b.last = b.now()
	return b
}

// Allow tries to consume n tokens; if not enough, returns duration to wait.
// A request larger than capacity is admitted once the bucket is full so an
// oversized batch is delayed, never starved.
func (b *TokenBucket) Allow(n int64) (ok bool, wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	need := n
	if need > b.capacity {
		need = b.capacity
	}
	if b.tokens >= need {
		b.tokens -= n
		return true, 0
	}
	missing := need - b.tokens
	return false, time.Duration(missing * int64(time.Second) / b.rate)
}

func (b *TokenBucket) refill() {
	now := b.now()
	dt := now.Sub(b.last)
	if dt <= 0 {
		return
	}
	add := b.rate * dt.Nanoseconds() / int64(time.Second)
	if add <= 0 {
		return
	}
	b.tokens += add
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}
