package keys

import (
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("key_a", 3) {
			t.Fatalf("request %d unexpectedly limited", i+1)
		}
	}
	if l.Allow("key_a", 3) {
		t.Error("4th request in window should be limited")
	}

	// Another key has its own window
	if !l.Allow("key_b", 3) {
		t.Error("independent key limited")
	}

	// Next minute resets the window
	now = now.Add(time.Minute)
	if !l.Allow("key_a", 3) {
		t.Error("new window should allow")
	}
}

func TestLimiter_ZeroMeansUnlimited(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 1000; i++ {
		if !l.Allow("key_a", 0) {
			t.Fatal("rpm 0 must never limit")
		}
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	l := NewLimiter()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	const rpm = 50
	results := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() { results <- l.Allow("key_a", rpm) }()
	}

	allowed := 0
	for i := 0; i < 100; i++ {
		if <-results {
			allowed++
		}
	}
	if allowed != rpm {
		t.Errorf("allowed = %d, want exactly %d", allowed, rpm)
	}
}
