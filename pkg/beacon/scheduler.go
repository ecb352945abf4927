// scheduler.go provides the cancellable periodic task behind every timer
// in the client.

package beacon

import (
	"sync"
	"time"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

// Task runs fn every interval on a Clock until stopped. Each firing
// re-arms the task after fn returns. Safe for concurrent use; fn may call
// Reset or Stop on its own task.
type Task struct {
	clock    clock.Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   clock.Timer
	running bool
	gen     uint64
}

// NewTask creates a stopped task. A non-positive interval yields a task
// that never fires on its own; Tick still runs fn.
func NewTask(clk clock.Clock, interval time.Duration, fn func()) *Task {
	return &Task{clock: clk, interval: interval, fn: fn}
}

// Start arms the task. Starting a running task is a no-op.
func (t *Task) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.armLocked()
}

// Stop cancels any pending firing. A firing already in progress
// completes but does not re-arm.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Reset restarts the countdown from now. It does nothing when stopped.
func (t *Task) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armLocked()
}

// Tick runs fn immediately on the calling goroutine without touching the
// countdown.
func (t *Task) Tick() {
	t.fn()
}

// Running reports whether the task is armed.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) armLocked() {
	if t.interval <= 0 {
		return
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.interval, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if !t.running || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.fn()

	t.mu.Lock()
	defer t.mu.Unlock()
	// fn may have stopped or reset the task.
	if t.running && gen == t.gen {
		t.armLocked()
	}
}
