package gateway

import (
	"testing"
	"time"
)

func TestLimiter_BudgetExceeded(t *testing.T) {
	l := NewLimiter(time.Minute)

	for i := 0; i < 5; i++ {
		if !l.Allow("conn1:default", 5) {
			t.Fatalf("call %d should be within budget", i+1)
		}
	}
	if l.Allow("conn1:default", 5) {
		t.Error("sixth call must be rejected")
	}
	// Rejection affects only the one call; the key keeps rejecting, not erroring.
	if l.Allow("conn1:default", 5) {
		t.Error("seventh call must still be rejected")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(time.Minute)

	for i := 0; i < 3; i++ {
		l.Allow("conn1:default", 3)
	}
	if l.Allow("conn1:default", 3) {
		t.Error("conn1 exhausted its budget")
	}
	if !l.Allow("conn2:default", 3) {
		t.Error("conn2 must have its own budget")
	}
	if !l.Allow("conn1:location", 3) {
		t.Error("the location class must have its own budget")
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	l := NewLimiter(20 * time.Millisecond)

	if !l.Allow("conn1:default", 1) {
		t.Fatal("first call allowed")
	}
	if l.Allow("conn1:default", 1) {
		t.Fatal("second call within window rejected")
	}

	time.Sleep(30 * time.Millisecond)
	if !l.Allow("conn1:default", 1) {
		t.Error("budget must reset after the window elapses")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(time.Minute)
	l.Allow("stale:default", 5)
	l.Allow("fresh:default", 5)

	if l.size() != 2 {
		t.Fatalf("expected 2 buckets, got %d", l.size())
	}

	time.Sleep(15 * time.Millisecond)
	l.Allow("fresh:default", 5) // touch

	l.Sweep(10 * time.Millisecond)
	if l.size() != 1 {
		t.Errorf("expected the stale bucket swept, got %d buckets", l.size())
	}
}
