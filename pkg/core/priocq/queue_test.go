package priocq

import (
	"testing"

	"muxlink/pkg/protocol"
)

func msg(id string, p protocol.Priority, size int) *protocol.Message {
	return &protocol.Message{ID: id, Type: "t", Priority: p, Size: size}
}

func ids(ms []*protocol.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDrainPriorityThenFIFO(t *testing.T) {
	q := New(true)
	q.Enqueue(msg("low1", protocol.PriorityLow, 1))
	q.Enqueue(msg("med1", protocol.PriorityMedium, 1))
	q.Enqueue(msg("crit1", protocol.PriorityCritical, 1))
	q.Enqueue(msg("med2", protocol.PriorityMedium, 1))
	q.Enqueue(msg("high1", protocol.PriorityHigh, 1))

	got := ids(q.Drain(10, 1<<20))
	want := []string{"crit1", "high1", "med1", "med2", "low1"}
	if !equal(got, want) {
		t.Fatalf("order: got %v want %v", got, want)
	}
	if q.Len() != 0 || q.Bytes() != 0 {
		t.Fatalf("queue not empty: len=%d bytes=%d", q.Len(), q.Bytes())
	}
}

func TestSingleLaneKeepsArrivalOrder(t *testing.T) {
	q := New(false)
	q.Enqueue(msg("a", protocol.PriorityLow, 1))
	q.Enqueue(msg("b", protocol.PriorityCritical, 1))
	got := ids(q.Drain(10, 100))
	if !equal(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestDrainBounds(t *testing.T) {
	q := New(true)
	for i := 0; i < 25; i++ {
		q.Enqueue(msg(string(rune('a'+i)), protocol.PriorityMedium, 10))
	}
	var sizes []int
	for q.Len() > 0 {
		sizes = append(sizes, len(q.Drain(10, 1000)))
	}
	if len(sizes) != 3 || sizes[0] != 10 || sizes[1] != 10 || sizes[2] != 5 {
		t.Fatalf("batch sizes: %v", sizes)
	}

	for i := 0; i < 5; i++ {
		q.Enqueue(msg(string(rune('a'+i)), protocol.PriorityMedium, 40))
	}
	if n := len(q.Drain(10, 100)); n != 2 {
		t.Fatalf("byte bound: got %d messages", n)
	}
}

func TestDrainOversizedAlone(t *testing.T) {
	q := New(true)
	q.Enqueue(msg("big", protocol.PriorityHigh, 5000))
	q.Enqueue(msg("small", protocol.PriorityHigh, 10))
	got := ids(q.Drain(10, 1000))
	if !equal(got, []string{"big"}) {
		t.Fatalf("got %v", got)
	}
	got = ids(q.Drain(10, 1000))
	if !equal(got, []string{"small"}) {
		t.Fatalf("got %v", got)
	}
}

func TestDrainDoesNotSkipBlockedLane(t *testing.T) {
	q := New(true)
	q.Enqueue(msg("c1", protocol.PriorityCritical, 60))
	q.Enqueue(msg("c2", protocol.PriorityCritical, 60))
	q.Enqueue(msg("l1", protocol.PriorityLow, 1))
	got := ids(q.Drain(10, 100))
	if !equal(got, []string{"c1"}) {
		t.Fatalf("got %v", got)
	}
}

func TestRequeueAtHead(t *testing.T) {
	q := New(true)
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		q.Enqueue(msg(id, protocol.PriorityMedium, 1))
	}
	q.Enqueue(msg("h1", protocol.PriorityHigh, 1))
	first := q.Drain(3, 100) // h1 m1 m2
	q.Requeue(first)
	if q.Len() != 5 {
		t.Fatalf("len after requeue: %d", q.Len())
	}
	got := ids(q.DrainAll())
	want := []string{"h1", "m1", "m2", "m3", "m4"}
	if !equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLaneCompaction(t *testing.T) {
	q := New(true)
	for i := 0; i < 200; i++ {
		q.Enqueue(msg("x", protocol.PriorityLow, 1))
		if i%3 == 0 {
			q.Drain(1, 10)
		}
	}
	d := q.Depths()
	if d[protocol.PriorityLow] != q.Len() {
		t.Fatalf("depths %v len %d", d, q.Len())
	}
	if d[protocol.PriorityCritical] != 0 {
		t.Fatalf("unexpected critical depth %v", d)
	}
}
