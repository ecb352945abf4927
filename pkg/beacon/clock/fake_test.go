package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFuncFiresOnAdvance(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	assert.Equal(t, 0, fired)

	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
	assert.Equal(t, epoch.Add(3*time.Second), c.Now())

	c.Advance(time.Minute)
	assert.Equal(t, 1, fired, "one-shot timer must not fire twice")
}

func TestFakeClock_CallbackSeesDeadlineTime(t *testing.T) {
	c := NewFake(epoch)
	var seen time.Time
	c.AfterFunc(5*time.Second, func() { seen = c.Now() })

	c.Advance(20 * time.Second)
	assert.Equal(t, epoch.Add(5*time.Second), seen)
	assert.Equal(t, epoch.Add(20*time.Second), c.Now())
}

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFakeClock_StopAndReset(t *testing.T) {
	c := NewFake(epoch)
	fired := 0
	timer := c.AfterFunc(time.Second, func() { fired++ })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(2 * time.Second)
	assert.Equal(t, 0, fired)

	assert.False(t, timer.Reset(time.Second))
	c.Advance(time.Second)
	assert.Equal(t, 1, fired)
}

func TestFakeClock_RescheduleFromCallback(t *testing.T) {
	c := NewFake(epoch)
	ticks := 0
	var arm func()
	arm = func() {
		c.AfterFunc(time.Second, func() {
			ticks++
			arm()
		})
	}
	arm()

	c.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 1, c.Pending())
}

func TestFakeClock_NonPositiveRunsImmediately(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })
	assert.True(t, fired)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeClock_BlockUntilCountsAfterFuncs(t *testing.T) {
	c := NewFake(epoch)
	done := make(chan struct{})
	go func() {
		c.AfterFunc(time.Second, func() {})
		c.AfterFunc(2*time.Second, func() {})
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.BlockUntilContext(ctx, 2))
	<-done

	c.Advance(time.Second)
	require.NoError(t, c.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, c.Pending())
}

func TestFakeClock_ChannelTimersShareTime(t *testing.T) {
	c := NewFake(epoch)
	timer := c.NewTimer(2 * time.Second)
	fired := false
	c.AfterFunc(time.Second, func() { fired = true })

	c.Advance(3 * time.Second)
	assert.True(t, fired)
	select {
	case at := <-timer.Chan():
		assert.Equal(t, epoch.Add(2*time.Second), at)
	default:
		t.Fatal("channel timer did not fire")
	}
	assert.Equal(t, 3*time.Second, c.Since(epoch))
}
