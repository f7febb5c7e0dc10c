// Package priocq holds the outgoing lanes and the egress shaper.
package priocq

import (
	"muxlink/pkg/protocol"
)

// lane is a FIFO with an amortized pop-front.
type lane struct {
	q    []*protocol.Message
	head int
}

func (l *lane) len() int { return len(l.q) - l.head }

func (l *lane) push(m *protocol.Message) { l.q = append(l.q, m) }

func (l *lane) peek() *protocol.Message { return l.q[l.head] }

func (l *lane) pop() *protocol.Message {
	m := l.q[l.head]
	l.q[l.head] = nil
	l.head++
	// compact once the dead prefix dominates
	if l.head > 32 && l.head*2 >= len(l.q) {
		n := copy(l.q, l.q[l.head:])
		clear(l.q[n:])
		l.q = l.q[:n]
		l.head = 0
	}
	return m
}

func (l *lane) pushFront(ms []*protocol.Message) {
	if len(ms) == 0 {
		return
	}
	if l.head >= len(ms) {
		l.head -= len(ms)
		copy(l.q[l.head:], ms)
		return
	}
	q := make([]*protocol.Message, 0, len(ms)+l.len())
	q = append(q, ms...)
	q = append(q, l.q[l.head:]...)
	l.q, l.head = q, 0
}

// MultiLevelQueue: strict priority between lanes, FIFO within a lane.
// It is owned by the engine loop and is not safe for concurrent use.
type MultiLevelQueue struct {
	lanes  [protocol.NumPriorities]lane
	single bool
	count  int
	bytes  int
}

// New returns a queue with one lane per priority. With prioritized false all
// messages share one FIFO lane and keep their priority value.
func New(prioritized bool) *MultiLevelQueue { return &MultiLevelQueue{single: !prioritized} }

func (q *MultiLevelQueue) laneIndex(p protocol.Priority) int {
	switch {
	case q.single:
		return 0
	case !p.Valid():
		return int(protocol.PriorityLow)
	default:
		return int(p)
	}
}

// Enqueue appends m to its lane.
func (q *MultiLevelQueue) Enqueue(m *protocol.Message) {
	q.lanes[q.laneIndex(m.Priority)].push(m)
	q.count++
	q.bytes += m.Size
}

// Requeue puts ms back at the head of their lanes, keeping their relative order.
func (q *MultiLevelQueue) Requeue(ms []*protocol.Message) {
	var groups [protocol.NumPriorities][]*protocol.Message
	for _, m := range ms {
		i := q.laneIndex(m.Priority)
		groups[i] = append(groups[i], m)
		q.count++
		q.bytes += m.Size
	}
	for i := range groups {
		q.lanes[i].pushFront(groups[i])
	}
}

// Drain removes up to maxCount messages totalling at most maxBytes, highest
// priority first. A first message larger than maxBytes is returned alone.
func (q *MultiLevelQueue) Drain(maxCount, maxBytes int) []*protocol.Message {
	var out []*protocol.Message
	size := 0
	for i := range q.lanes {
		l := &q.lanes[i]
		for l.len() > 0 && len(out) < maxCount {
			next := l.peek()
			if size+next.Size > maxBytes {
				if len(out) == 0 {
					out = append(out, q.take(l))
				}
				return out
			}
			size += next.Size
			out = append(out, q.take(l))
		}
		if len(out) >= maxCount {
			break
		}
	}
	return out
}

// DrainAll empties every lane in priority order.
func (q *MultiLevelQueue) DrainAll() []*protocol.Message {
	out := make([]*protocol.Message, 0, q.count)
	for i := range q.lanes {
		l := &q.lanes[i]
		for l.len() > 0 {
			out = append(out, q.take(l))
		}
	}
	return out
}

func (q *MultiLevelQueue) take(l *lane) *protocol.Message {
	m := l.pop()
	q.count--
	q.bytes -= m.Size
	return m
}

// Len is the number of queued messages.
func (q *MultiLevelQueue) Len() int { return q.count }

// Bytes is the sum of queued message sizes.
func (q *MultiLevelQueue) Bytes() int { return q.bytes }

// Depths reports queued messages per priority value.
func (q *MultiLevelQueue) Depths() map[protocol.Priority]int {
	out := make(map[protocol.Priority]int, protocol.NumPriorities)
	for p := protocol.Priority(0); p < protocol.NumPriorities; p++ {
		out[p] = 0
	}
	for i := range q.lanes {
		l := &q.lanes[i]
		for _, m := range l.q[l.head:] {
			out[m.Priority]++
		}
	}
	return out
}
