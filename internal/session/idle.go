package session

import (
	"log/slog"
	"sync"
	"time"
)

// IdleTimer counts down while a recording session receives no activity and
// fires a callback when the countdown reaches zero. Loud audio, accepted
// fragments, and manual submits reset it. The timer ticks once per second
// so the remaining time can be shown as a whole-second countdown.
type IdleTimer struct {
	window   time.Duration
	logger   *slog.Logger
	onExpire func()

	deadline time.Time
	done     chan struct{}
	running  bool

	mu sync.Mutex
}

// NewIdleTimer creates a stopped idle timer. onExpire is called from the
// timer goroutine exactly once per Start.
func NewIdleTimer(window time.Duration, logger *slog.Logger, onExpire func()) *IdleTimer {
	return &IdleTimer{
		window:   window,
		logger:   logger,
		onExpire: onExpire,
	}
}

// Start begins the countdown. Starting a running timer resets it.
func (t *IdleTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.deadline = time.Now().Add(t.window)
		return
	}

	t.deadline = time.Now().Add(t.window)
	t.done = make(chan struct{})
	t.running = true

	go t.run(t.done)
}

// Reset pushes the deadline back to a full window from now. Resetting a
// stopped timer does nothing.
func (t *IdleTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.deadline = time.Now().Add(t.window)
	}
}

// Stop halts the countdown without firing. Safe to call repeatedly.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		close(t.done)
		t.running = false
	}
}

// Running reports whether the countdown is active.
func (t *IdleTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Remaining returns the whole seconds left before expiry, or zero when the
// timer is stopped.
func (t *IdleTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return 0
	}
	left := time.Until(t.deadline)
	if left < 0 {
		return 0
	}
	return int(left.Round(time.Second) / time.Second)
}

func (t *IdleTimer) run(done chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			expired := t.running && !now.Before(t.deadline)
			if expired {
				t.running = false
			}
			t.mu.Unlock()

			if expired {
				t.logger.Info("Idle timeout reached, stopping session")
				t.onExpire()
				return
			}
		}
	}
}
