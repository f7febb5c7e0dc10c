package client

import (
	"testing"
	"time"

	"muxlink/pkg/config"
)

func TestStateTransitions(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnecting, StateReconnecting},
		{StateConnecting, StateFailed},
		{StateConnecting, StateDisconnected},
		{StateConnected, StateDisconnected},
		{StateConnected, StateReconnecting},
		{StateConnected, StateFailed},
		{StateReconnecting, StateConnecting},
		{StateReconnecting, StateDisconnected},
		{StateFailed, StateConnecting},
		{StateFailed, StateDisconnected},
	}
	for _, tc := range legal {
		if !tc.from.CanTransition(tc.to) {
			t.Fatalf("%s -> %s should be legal", tc.from, tc.to)
		}
	}
	illegal := []struct{ from, to State }{
		{StateDisconnected, StateConnected},
		{StateDisconnected, StateReconnecting},
		{StateReconnecting, StateConnected},
		{StateFailed, StateConnected},
		{StateConnected, StateConnecting},
	}
	for _, tc := range illegal {
		if tc.from.CanTransition(tc.to) {
			t.Fatalf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestReconnectDelay(t *testing.T) {
	cfg := config.DefaultClient()
	cfg.ReconnectIntervalMS = 100
	cfg.MaxReconnectDelayMS = 1000
	cfg.ReconnectJitterMS = 0
	want := []time.Duration{100, 200, 400, 800, 1000, 1000}
	for attempt, w := range want {
		if got := reconnectDelay(cfg, attempt); got != w*time.Millisecond {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, w*time.Millisecond)
		}
	}

	cfg.ReconnectJitterMS = 50
	for i := 0; i < 100; i++ {
		d := reconnectDelay(cfg, 0)
		if d < 100*time.Millisecond || d >= 150*time.Millisecond {
			t.Fatalf("jittered delay out of range: %v", d)
		}
	}
}

func TestReconnectDelayStaysCappedForLargeBase(t *testing.T) {
	cfg := config.DefaultClient()
	cfg.ReconnectIntervalMS = 10000
	cfg.MaxReconnectDelayMS = 60000
	cfg.ReconnectJitterMS = 0
	for _, attempt := range []int{3, 29, 30, 64} {
		if got := reconnectDelay(cfg, attempt); got != time.Minute {
			t.Fatalf("attempt %d: got %v want %v", attempt, got, time.Minute)
		}
	}
}
