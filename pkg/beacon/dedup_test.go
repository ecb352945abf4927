package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicator_SuppressesWithinWindow(t *testing.T) {
	d := NewDeduplicator(DedupConfig{MaxCacheSize: 100, TimeWindow: 5 * time.Second})
	ev := &Event{ID: "first"}

	require.False(t, d.Admit("fp", testEpoch))
	d.Attach("fp", ev)

	for i := 1; i < 10; i++ {
		assert.True(t, d.Admit("fp", testEpoch.Add(time.Duration(i)*200*time.Millisecond)))
	}
	assert.Equal(t, 10, ev.DedupCount())
	assert.Empty(t, d.TakeCorrections())
}

func TestDeduplicator_NewWindowAfterExpiry(t *testing.T) {
	d := NewDeduplicator(DedupConfig{TimeWindow: 5 * time.Second})
	first := &Event{ID: "first"}

	require.False(t, d.Admit("fp", testEpoch))
	d.Attach("fp", first)
	require.True(t, d.Admit("fp", testEpoch.Add(4*time.Second)))

	assert.False(t, d.Admit("fp", testEpoch.Add(5*time.Second)), "window boundary starts a new window")
	second := &Event{ID: "second"}
	d.Attach("fp", second)

	assert.Equal(t, 2, first.DedupCount())
	assert.Equal(t, 1, second.DedupCount())
}

func TestDeduplicator_CorrectionAfterSeal(t *testing.T) {
	d := NewDeduplicator(DedupConfig{TimeWindow: 5 * time.Second})
	ev := &Event{ID: "first"}

	require.False(t, d.Admit("fp", testEpoch))
	d.Attach("fp", ev)
	require.True(t, d.Admit("fp", testEpoch.Add(time.Second)))

	// Delivered with a count of two.
	assert.Equal(t, 2, ev.dedup.seal())

	require.True(t, d.Admit("fp", testEpoch.Add(2*time.Second)))
	require.True(t, d.Admit("fp", testEpoch.Add(3*time.Second)))
	assert.Equal(t, 2, ev.DedupCount(), "sealed count is frozen")

	d.Sweep(testEpoch.Add(4 * time.Second))
	assert.Empty(t, d.TakeCorrections(), "window still open")

	d.Sweep(testEpoch.Add(5 * time.Second))
	corrections := d.TakeCorrections()
	require.Len(t, corrections, 1)
	assert.Same(t, ev, corrections[0].Original)
	assert.Equal(t, 4, corrections[0].Total)
	assert.Equal(t, 2, corrections[0].Delta)
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.TakeCorrections())
}

func TestDeduplicator_CloseAllReportsOpenWindows(t *testing.T) {
	d := NewDeduplicator(DedupConfig{TimeWindow: time.Minute})
	sealed := &Event{ID: "sealed"}
	quiet := &Event{ID: "quiet"}

	require.False(t, d.Admit("a", testEpoch))
	d.Attach("a", sealed)
	sealed.dedup.seal()
	require.True(t, d.Admit("a", testEpoch.Add(time.Second)))

	require.False(t, d.Admit("b", testEpoch))
	d.Attach("b", quiet)
	require.True(t, d.Admit("b", testEpoch.Add(time.Second)))

	d.CloseAll()
	corrections := d.TakeCorrections()
	require.Len(t, corrections, 1, "unsealed windows have nothing to correct")
	assert.Same(t, sealed, corrections[0].Original)
	assert.Equal(t, 2, corrections[0].Total)
	assert.Equal(t, 1, corrections[0].Delta)
	assert.Equal(t, 0, d.Len())
}

func TestDeduplicator_CorrectionOnReadmit(t *testing.T) {
	d := NewDeduplicator(DedupConfig{TimeWindow: time.Second})
	ev := &Event{ID: "first"}
	d.Admit("fp", testEpoch)
	d.Attach("fp", ev)
	ev.dedup.seal()
	d.Admit("fp", testEpoch.Add(500*time.Millisecond))

	assert.False(t, d.Admit("fp", testEpoch.Add(2*time.Second)))
	corrections := d.TakeCorrections()
	require.Len(t, corrections, 1)
	assert.Equal(t, 1, corrections[0].Delta)
}

func TestDeduplicator_LRUEviction(t *testing.T) {
	d := NewDeduplicator(DedupConfig{MaxCacheSize: 2, TimeWindow: time.Minute})
	a := &Event{ID: "a"}
	d.Admit("a", testEpoch)
	d.Attach("a", a)
	a.dedup.seal()
	d.Admit("a", testEpoch)

	d.Admit("b", testEpoch)
	d.Admit("c", testEpoch)

	assert.Equal(t, 2, d.Len())
	// "a" lost its accounting, so it is admitted again.
	assert.False(t, d.Admit("a", testEpoch.Add(time.Second)))

	corrections := d.TakeCorrections()
	require.Len(t, corrections, 1)
	assert.Equal(t, "a", corrections[0].Original.ID)
}

func TestDeduplicator_UnsampledFirstSuppressesQuietly(t *testing.T) {
	d := NewDeduplicator(DedupConfig{})

	require.False(t, d.Admit("fp", testEpoch))
	// No Attach: the first occurrence was not sampled.
	assert.True(t, d.Admit("fp", testEpoch.Add(time.Second)))
	d.Sweep(testEpoch.Add(time.Hour))
	assert.Empty(t, d.TakeCorrections())
}
