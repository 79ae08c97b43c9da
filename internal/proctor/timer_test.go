package proctor

import (
	"context"
	"testing"
	"time"
)

func TestTimerCountsDownToZero(t *testing.T) {
	done := make(chan struct{})
	var ticks []int

	timer := NewTimerAdapter(3, time.Millisecond, func(remaining int) {
		ticks = append(ticks, remaining)
		if remaining == 0 {
			close(done)
		}
	})

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not finish")
	}
	timer.Stop()

	want := []int{2, 1, 0}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("ticks = %v, want %v", ticks, want)
		}
	}
}

func TestTimerZeroSecondsNeverTicks(t *testing.T) {
	timer := NewTimerAdapter(0, time.Millisecond, func(int) {
		t.Error("disabled timer ticked")
	})

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	timer.Stop()
}

func TestTimerStopIsIdempotent(t *testing.T) {
	timer := NewTimerAdapter(1000, time.Millisecond, func(int) {})
	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	timer.Stop()
	timer.Stop()
	timer.Stop()
}

func TestTimerStopBeforeStart(t *testing.T) {
	timer := NewTimerAdapter(1000, time.Millisecond, func(int) {
		t.Error("stopped timer ticked")
	})

	timer.Stop()
	// A late Start must not arm a stopped timer.
	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
}

func TestTimerStopFromOwnCallback(t *testing.T) {
	var timer *TimerAdapter
	done := make(chan struct{})

	timer = NewTimerAdapter(2, time.Millisecond, func(remaining int) {
		if remaining == 0 {
			// Re-entrant Stop from the tick handler must not deadlock.
			timer.Stop()
			close(done)
		}
	})

	if err := timer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant Stop deadlocked")
	}
}

func TestTimerRemaining(t *testing.T) {
	timer := NewTimerAdapter(90, time.Hour, func(int) {})
	if got := timer.Remaining(); got != 90 {
		t.Fatalf("remaining = %d, want 90", got)
	}
}
