package ratelimit

import (
	"testing"
	"time"
)

func TestAllowPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of 2 should pass")
	}
	if l.Allow("a") {
		t.Fatalf("third request inside the same instant should be rejected")
	}
	if !l.Allow("b") {
		t.Fatalf("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("token should refill after a second")
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	l := New(10, 1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.mu.Lock()
	l.sweep(now)
	l.mu.Unlock()
	if l.Len() != 0 {
		t.Fatalf("expected idle key to be dropped, have %d", l.Len())
	}
}
