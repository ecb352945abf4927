package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FakeClock is a deterministic Clock built on clockwork's fake. Time
// moves only when Advance is called. Unlike clockwork, AfterFunc
// callbacks run synchronously inside Advance in deadline order, so a
// test observes their effects as soon as Advance returns.
//
// Callbacks may schedule new timers. They must not call Advance.
type FakeClock struct {
	*clockwork.FakeClock

	mu    sync.Mutex
	funcs []*fakeFunc
}

// fakeFunc is an AfterFunc call. Its deadline is tracked by a clockwork
// channel timer so BlockUntilContext sees it as a waiter.
type fakeFunc struct {
	c        *FakeClock
	timer    clockwork.Timer
	fn       func()
	deadline time.Time
	active   bool
}

// NewFake returns a FakeClock frozen at start.
func NewFake(start time.Time) *FakeClock {
	return &FakeClock{FakeClock: clockwork.NewFakeClockAt(start)}
}

// AfterFunc registers f to run when the clock reaches now+d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	ff := &fakeFunc{c: c, fn: f}
	if d <= 0 {
		f()
		ff.timer = c.FakeClock.NewTimer(0)
		return ff
	}

	c.mu.Lock()
	ff.deadline = c.FakeClock.Now().Add(d)
	ff.active = true
	ff.timer = c.FakeClock.NewTimer(d)
	c.funcs = append(c.funcs, ff)
	c.mu.Unlock()
	return ff
}

func (ff *fakeFunc) Chan() <-chan time.Time { return ff.timer.Chan() }

func (ff *fakeFunc) Stop() bool {
	ff.c.mu.Lock()
	defer ff.c.mu.Unlock()
	was := ff.active
	ff.active = false
	ff.timer.Stop()
	return was
}

func (ff *fakeFunc) Reset(d time.Duration) bool {
	ff.c.mu.Lock()
	defer ff.c.mu.Unlock()
	was := ff.active
	ff.deadline = ff.c.FakeClock.Now().Add(d)
	ff.timer.Reset(d)
	if !was {
		ff.active = true
		ff.c.funcs = append(ff.c.funcs, ff)
	}
	return was
}

// Advance moves the clock forward by d, firing every AfterFunc whose
// deadline is reached. Calls scheduled by callbacks fire in the same
// Advance if their deadline also falls within the advanced range.
func (c *FakeClock) Advance(d time.Duration) {
	target := c.FakeClock.Now().Add(d)
	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.mu.Unlock()
			break
		}
		next.active = false
		c.mu.Unlock()

		if step := next.deadline.Sub(c.FakeClock.Now()); step > 0 {
			c.FakeClock.Advance(step)
		}
		next.timer.Stop()
		drain(next.timer)
		next.fn()
	}
	if rest := target.Sub(c.FakeClock.Now()); rest > 0 {
		c.FakeClock.Advance(rest)
	}
}

func drain(t clockwork.Timer) {
	select {
	case <-t.Chan():
	default:
	}
}

// nextDueLocked removes inactive calls and returns the earliest active
// call due at or before target.
func (c *FakeClock) nextDueLocked(target time.Time) *fakeFunc {
	live := c.funcs[:0]
	for _, ff := range c.funcs {
		if ff.active {
			live = append(live, ff)
		}
	}
	for i := len(live); i < len(c.funcs); i++ {
		c.funcs[i] = nil
	}
	c.funcs = live

	sort.SliceStable(c.funcs, func(i, j int) bool {
		return c.funcs[i].deadline.Before(c.funcs[j].deadline)
	})
	if len(c.funcs) == 0 || c.funcs[0].deadline.After(target) {
		return nil
	}
	return c.funcs[0]
}

// Pending returns the number of AfterFunc calls waiting to fire.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ff := range c.funcs {
		if ff.active {
			n++
		}
	}
	return n
}
