package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsAfterFirstSuccess(t *testing.T) {
	runs := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		runs++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if runs != 1 {
		t.Errorf("ran %d times, want 1", runs)
	}
}

func TestDoRecoversFromTransientFailures(t *testing.T) {
	runs := 0
	err := Do(context.Background(), 4, time.Millisecond, func() error {
		runs++
		if runs < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if runs != 3 {
		t.Errorf("ran %d times, want 3", runs)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	down := errors.New("still down")
	runs := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		runs++
		return down
	})
	if !errors.Is(err, down) {
		t.Fatalf("err = %v, want %v", err, down)
	}
	if runs != 3 {
		t.Errorf("ran %d times, want 3", runs)
	}
}

func TestDoHonorsPermanent(t *testing.T) {
	gone := errors.New("not found")
	runs := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		runs++
		return Permanent(gone)
	})
	if !errors.Is(err, gone) {
		t.Fatalf("err = %v, want %v", err, gone)
	}
	if runs != 1 {
		t.Errorf("permanent failure retried: ran %d times", runs)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 10, 200*time.Millisecond, func() error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestDoTreatsZeroAttemptsAsOne(t *testing.T) {
	runs := 0
	if err := Do(context.Background(), 0, time.Millisecond, func() error {
		runs++
		return nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if runs != 1 {
		t.Errorf("ran %d times, want 1", runs)
	}
}

func TestSpreadStaysNearInput(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := spread(d)
		if got < 75*time.Millisecond || got > 125*time.Millisecond {
			t.Fatalf("spread(%v) = %v, outside +-25%%", d, got)
		}
	}
	if spread(0) != 0 {
		t.Error("spread(0) != 0")
	}
}
