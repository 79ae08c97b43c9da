package proctor

import (
	"context"
	"sync"
	"time"
)

// TimerAdapter emits one tick per elapsed interval while armed, carrying a
// monotonically decreasing remaining-seconds count. It never emits below
// zero; the zero tick is the last. Stop cancels the loop without waiting for
// it — callers that hold a lock taken inside the tick handler can stop the
// timer safely, and a tick already in flight is theirs to guard against.
type TimerAdapter struct {
	interval  time.Duration
	remaining int
	emit      func(remaining int)

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  bool
	stopOnce sync.Once
}

// NewTimerAdapter creates a countdown of totalSeconds. interval exists so
// tests can run the countdown at speed; production passes time.Second.
func NewTimerAdapter(totalSeconds int, interval time.Duration, fn func(remaining int)) *TimerAdapter {
	if interval <= 0 {
		interval = time.Second
	}
	return &TimerAdapter{
		interval:  interval,
		remaining: totalSeconds,
		emit:      fn,
	}
}

func (t *TimerAdapter) Source() Source { return SourceTimer }

// Start arms the countdown. A timer with zero remaining seconds starts
// successfully but never ticks (timer disabled ⇒ no countdown, no
// auto-submit).
func (t *TimerAdapter) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil
	}
	t.started = true

	if t.remaining <= 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go t.run(runCtx)
	return nil
}

func (t *TimerAdapter) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			if ctx.Err() != nil {
				t.mu.Unlock()
				return
			}
			t.remaining--
			rem := t.remaining
			t.mu.Unlock()

			t.emit(rem)
			if rem <= 0 {
				return
			}
		}
	}
}

// Stop cancels the countdown. Idempotent, safe before Start, never blocks.
func (t *TimerAdapter) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.started = true // Block a late Start from arming a stopped timer.
		if t.cancel != nil {
			t.cancel()
		}
	})
}

// Remaining returns the current remaining-seconds count.
func (t *TimerAdapter) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}
