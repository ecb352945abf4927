// intake.go is the bounded channel between producers and the pipeline.
// Pushes never block; when full, the oldest queued item is dropped. A
// dropped barrier is held until the pipeline finishes the item it is
// working on, since everything queued ahead of it has been taken.

package beacon

import (
	"context"
	"sync"
)

type intakeKind int

const (
	intakeEvent intakeKind = iota
	intakeBarrier
	intakeSweep
)

type intakeItem struct {
	kind intakeKind
	raw  RawEvent
	tags map[string]string

	// barrier is closed once the pipeline reaches this item.
	barrier chan struct{}
}

type intake struct {
	queue     chan intakeItem
	onDropped func(intakeItem)

	closeMu sync.RWMutex
	closed  bool

	heldMu sync.Mutex
	held   []chan struct{}
}

func newIntake(size int, onDropped func(intakeItem)) *intake {
	return &intake{
		queue:     make(chan intakeItem, size),
		onDropped: onDropped,
	}
}

// push enqueues item without blocking. It returns false once closed.
func (in *intake) push(item intakeItem) bool {
	in.closeMu.RLock()
	defer in.closeMu.RUnlock()
	if in.closed {
		return false
	}

	select {
	case in.queue <- item:
		return true
	default:
	}

	// Full: drop the oldest and try once more.
	select {
	case old := <-in.queue:
		in.dropped(old)
	default:
	}
	select {
	case in.queue <- item:
	default:
		in.dropped(item)
	}
	return true
}

// pushWait enqueues item, waiting for room until ctx is done.
func (in *intake) pushWait(ctx context.Context, item intakeItem) error {
	in.closeMu.RLock()
	defer in.closeMu.RUnlock()
	if in.closed {
		return ErrClosed
	}
	select {
	case in.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *intake) dropped(item intakeItem) {
	if item.kind == intakeBarrier {
		in.heldMu.Lock()
		in.held = append(in.held, item.barrier)
		in.heldMu.Unlock()
		return
	}
	if in.onDropped != nil {
		in.onDropped(item)
	}
}

// releaseHeld closes barriers dropped from the queue. The pipeline calls
// it before taking each item and once the queue is drained.
func (in *intake) releaseHeld() {
	in.heldMu.Lock()
	held := in.held
	in.held = nil
	in.heldMu.Unlock()
	for _, b := range held {
		close(b)
	}
}

// close stops intake. Items already queued stay readable.
func (in *intake) close() {
	in.closeMu.Lock()
	defer in.closeMu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	close(in.queue)
}
