// Package heartbeat measures round-trip latency from ping/pong exchanges.
package heartbeat

import (
	"time"
)

// DefaultSamples is the size of the latency window.
const DefaultSamples = 100

// Monitor keeps a rolling window of latency samples and the liveness state
// of the current connection. It is owned by the engine loop.
type Monitor struct {
	interval time.Duration

	samples []time.Duration
	next    int
	full    bool

	lastPing time.Time
	lastPong time.Time
	started  time.Time
}

// New returns a monitor for the given ping interval and window size.
func New(interval time.Duration, window int) *Monitor {
	if window <= 0 {
		window = DefaultSamples
	}
	return &Monitor{interval: interval, samples: make([]time.Duration, window)}
}

// Interval is the configured ping period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// Start resets liveness tracking for a new connection. Latency samples survive.
func (m *Monitor) Start(now time.Time) {
	m.started = now
	m.lastPing = time.Time{}
	m.lastPong = time.Time{}
}

// Ping records a ping sent at now and returns its sentAt stamp (unix ms).
func (m *Monitor) Ping(now time.Time) int64 {
	m.lastPing = now
	return now.UnixMilli()
}

// Pong records a pong received at now. sentAt of 0 falls back to the last
// ping time. The measured latency is returned.
func (m *Monitor) Pong(sentAt int64, now time.Time) time.Duration {
	m.lastPong = now
	var sent time.Time
	switch {
	case sentAt > 0:
		sent = time.UnixMilli(sentAt)
	case !m.lastPing.IsZero():
		sent = m.lastPing
	default:
		return 0
	}
	lat := now.Sub(sent)
	if lat < 0 {
		lat = 0
	}
	m.samples[m.next] = lat
	m.next++
	if m.next == len(m.samples) {
		m.next = 0
		m.full = true
	}
	return lat
}

func (m *Monitor) count() int {
	if m.full {
		return len(m.samples)
	}
	return m.next
}

// Average is the mean of the window, or 0 without samples.
func (m *Monitor) Average() time.Duration {
	n := m.count()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range m.samples[:n] {
		sum += s
	}
	return sum / time.Duration(n)
}

// Last is the most recent sample, or 0.
func (m *Monitor) Last() time.Duration {
	if m.count() == 0 {
		return 0
	}
	i := m.next - 1
	if i < 0 {
		i = len(m.samples) - 1
	}
	return m.samples[i]
}

// Samples returns the window oldest first.
func (m *Monitor) Samples() []time.Duration {
	n := m.count()
	out := make([]time.Duration, 0, n)
	if m.full {
		out = append(out, m.samples[m.next:]...)
		out = append(out, m.samples[:m.next]...)
		return out
	}
	return append(out, m.samples[:n]...)
}

// LastPong is the time of the most recent pong on this connection.
func (m *Monitor) LastPong() time.Time { return m.lastPong }

// Healthy is false once pings are going out and no pong has arrived for
// twice the interval. It never triggers a reconnect.
func (m *Monitor) Healthy(now time.Time) bool {
	if m.lastPing.IsZero() {
		return true
	}
	ref := m.lastPong
	if ref.IsZero() {
		ref = m.started
	}
	return now.Sub(ref) < 2*m.interval
}
