// tier_queue.go holds the pending events of one delivery tier.

package beacon

import (
	"sync"
	"time"
)

// tierQueue is a FIFO of events for one tier with its flush policy and
// in-flight guard. At most one send per tier is in flight; a flush
// requested meanwhile is remembered and run when the send completes.
type tierQueue struct {
	tier   Tier
	policy LayerPolicy
	timer  *Task

	mu             sync.Mutex
	pending        []*Event
	lastFlush      time.Time
	inFlight       bool
	flushRequested bool
}

func newTierQueue(tier Tier, policy LayerPolicy) *tierQueue {
	return &tierQueue{tier: tier, policy: policy}
}

// push appends ev and reports whether the queue should flush now.
func (q *tierQueue) push(ev *Event) (flushNow bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, ev)
	return q.policy.immediate() || len(q.pending) >= q.policy.BatchSize
}

// begin claims the queue for a flush. It returns false, and remembers
// the request, when a send is already in flight; it also returns false
// for an empty queue.
func (q *tierQueue) begin(now time.Time) ([]*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inFlight {
		q.flushRequested = true
		return nil, false
	}
	q.flushRequested = false
	q.lastFlush = now
	if len(q.pending) == 0 {
		return nil, false
	}
	events := q.pending
	q.pending = nil
	q.inFlight = true
	return events, true
}

// finish releases the in-flight guard and reports whether a flush was
// requested while it was held and there is something to send.
func (q *tierQueue) finish() (again bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight = false
	again = q.flushRequested && len(q.pending) > 0
	q.flushRequested = false
	return again
}

// chunkSize is the number of events per request.
func (q *tierQueue) chunkSize() int {
	if q.policy.immediate() {
		return 1
	}
	return q.policy.BatchSize
}

func (q *tierQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *tierQueue) busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}
