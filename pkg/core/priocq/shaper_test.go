package priocq

import (
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewTokenBucket(1000, 1000)
	b.now = func() time.Time { return now }
	b.last = now

	if ok, _ := b.Allow(800); !ok {
		t.Fatalf("first allow should pass")
	}
	ok, wait := b.Allow(500)
	if ok || wait != 300*time.Millisecond {
		t.Fatalf("expected wait 300ms, got ok=%v wait=%v", ok, wait)
	}
	now = now.Add(300 * time.Millisecond)
	if ok, _ := b.Allow(500); !ok {
		t.Fatalf("allow after refill should pass")
	}
}

func TestTokenBucketOversized(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewTokenBucket(100, 0)
	b.now = func() time.Time { return now }
	b.last = now
	if ok, _ := b.Allow(500); !ok {
		t.Fatalf("oversized request should pass on a full bucket")
	}
	if ok, wait := b.Allow(1); ok || wait <= 0 {
		t.Fatalf("bucket should be in debt: ok=%v wait=%v", ok, wait)
	}
}
