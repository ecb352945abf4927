package beacon

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

type emitted struct {
	events []RawEvent
}

func (e *emitted) emit(raw RawEvent) { e.events = append(e.events, raw) }

func newTestRecorder(t *testing.T, cfg ReplayConfig) (*Recorder, *clock.FakeClock, *emitted) {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	out := &emitted{}
	r, err := NewRecorder(cfg, clk, out.emit, func() float64 { return 0.5 }, nil)
	require.NoError(t, err)
	return r, clk, out
}

// recordEverySecond records one frame per second for d, advancing clk.
func recordEverySecond(r *Recorder, clk *clock.FakeClock, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
		r.Record(Frame{Kind: "mutation", Data: map[string]any{"node": int64(elapsed / time.Second)}})
		clk.Advance(time.Second)
	}
}

func TestRecorder_WindowAroundTrigger(t *testing.T) {
	for _, codec := range []string{ReplayCodecZstd, ReplayCodecLZ4, ReplayCodecNone} {
		t.Run(codec, func(t *testing.T) {
			cfg := DefaultReplayConfig()
			cfg.Codec = codec
			r, clk, out := newTestRecorder(t, cfg)

			// 30s of history; only the last 10s survive the ring.
			recordEverySecond(r, clk, 30*time.Second)
			trigger := clk.Now()
			id := r.Trigger(TriggerError)
			require.NotEmpty(t, id)
			assert.Equal(t, ReplayTriggered, r.State())

			// Frames keep coming during the post window.
			recordEverySecond(r, clk, 9*time.Second)
			assert.Empty(t, out.events, "replay must not be emitted before the post window ends")

			r.Record(Frame{Kind: "mutation"})
			clk.Advance(time.Second)
			require.Len(t, out.events, 1)
			assert.Equal(t, ReplayIdle, r.State())

			raw := out.events[0]
			assert.Equal(t, CategoryReplay, raw.Category)
			assert.Equal(t, id, raw.ReplayID)
			assert.Equal(t, trigger, raw.Timestamp)
			assert.Equal(t, codec, raw.Fields["replay_encoding"])
			assert.Equal(t, int64(20000), raw.Fields["replay_duration_ms"])
			assert.Equal(t, trigger.Add(-10*time.Second).UnixMilli(), raw.Fields["replay_start"])
			assert.Equal(t, trigger.Add(10*time.Second).UnixMilli(), raw.Fields["replay_end"])
			assert.Equal(t, TriggerError, raw.Fields["replay_trigger"])

			frames, err := DecodeReplayFrames(raw.Fields)
			require.NoError(t, err)
			require.NotEmpty(t, frames)
			assert.Equal(t, int64(len(frames)), raw.Fields["replay_event_count"])
			for _, f := range frames {
				assert.False(t, f.Timestamp.Before(trigger.Add(-10*time.Second)), "frame %v before window", f.Timestamp)
				assert.False(t, f.Timestamp.After(trigger.Add(10*time.Second)), "frame %v after window", f.Timestamp)
			}
			assert.Equal(t, trigger.Add(-10*time.Second).UnixMilli(), frames[0].Timestamp.UnixMilli())
			assert.Equal(t, trigger.Add(9*time.Second).UnixMilli(), frames[len(frames)-1].Timestamp.UnixMilli())
		})
	}
}

func TestRecorder_ConcurrentTriggerJoinsCapture(t *testing.T) {
	r, clk, out := newTestRecorder(t, DefaultReplayConfig())

	first := r.Trigger(TriggerError)
	clk.Advance(5 * time.Second)
	second := r.Trigger(TriggerManual)
	assert.Equal(t, first, second)

	// The post window is not extended by the second trigger.
	clk.Advance(5 * time.Second)
	require.Len(t, out.events, 1)
	assert.Equal(t, []any{TriggerError, TriggerManual}, out.events[0].Fields["replay_triggers"])

	// After finalizing, a new trigger starts a new capture.
	third := r.Trigger(TriggerManual)
	assert.NotEqual(t, first, third)
}

func TestRecorder_NextCaptureKeepsPostWindowFrames(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.Codec = ReplayCodecNone
	r, clk, out := newTestRecorder(t, cfg)
	start := clk.Now()

	first := r.Trigger(TriggerError)
	clk.Advance(time.Second)
	recordEverySecond(r, clk, 9*time.Second)
	require.Len(t, out.events, 1)

	clk.Advance(2 * time.Second)
	second := r.Trigger(TriggerManual)
	assert.NotEqual(t, first, second)
	clk.Advance(10 * time.Second)
	require.Len(t, out.events, 2)

	frames, err := DecodeReplayFrames(out.events[1].Fields)
	require.NoError(t, err)
	require.Len(t, frames, 8)
	assert.Equal(t, start.Add(2*time.Second).UnixMilli(), frames[0].Timestamp.UnixMilli())
	assert.Equal(t, start.Add(9*time.Second).UnixMilli(), frames[7].Timestamp.UnixMilli())
}

// hookCodec runs onEncode while a capture is being serialized.
type hookCodec struct {
	noneCodec
	onEncode func()
}

func (c hookCodec) Encode(data []byte) ([]byte, error) {
	if c.onEncode != nil {
		c.onEncode()
	}
	return c.noneCodec.Encode(data)
}

func TestRecorder_TriggerWhileFinalizingStartsNewCapture(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.Codec = ReplayCodecNone
	r, clk, out := newTestRecorder(t, cfg)

	var during string
	var stateDuring ReplayState
	r.codec = hookCodec{onEncode: func() {
		if during != "" {
			return
		}
		stateDuring = r.State()
		r.Record(Frame{Kind: "click"})
		during = r.Trigger(TriggerManual)
	}}

	first := r.Trigger(TriggerError)
	clk.Advance(10 * time.Second)
	require.Len(t, out.events, 1)
	assert.Equal(t, ReplayFinalizing, stateDuring)
	assert.Equal(t, []any{TriggerError}, out.events[0].Fields["replay_triggers"])

	require.NotEmpty(t, during)
	assert.NotEqual(t, first, during)
	assert.Equal(t, ReplayTriggered, r.State())
	active, ok := r.ActiveReplayID()
	require.True(t, ok)
	assert.Equal(t, during, active)

	clk.Advance(10 * time.Second)
	require.Len(t, out.events, 2)
	assert.Equal(t, during, out.events[1].ReplayID)
	frames, err := DecodeReplayFrames(out.events[1].Fields)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "click", frames[0].Kind)
}

func TestRecorder_RingBoundedByMaxFrames(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.MaxFrames = 3
	cfg.Codec = ReplayCodecNone
	r, clk, out := newTestRecorder(t, cfg)

	for i := range 10 {
		r.Record(Frame{Kind: "click", Data: map[string]any{"i": int64(i)}})
	}
	r.Trigger(TriggerManual)
	for range 10 {
		r.Record(Frame{Kind: "scroll"})
	}
	clk.Advance(10 * time.Second)

	require.Len(t, out.events, 1)
	frames, err := DecodeReplayFrames(out.events[0].Fields)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, int64(7), frames[0].Data["i"])
}

func TestRecorder_MaybeTrigger(t *testing.T) {
	r, _, _ := newTestRecorder(t, DefaultReplayConfig())

	_, ok := r.MaybeTrigger(TriggerSession, 0.4)
	assert.False(t, ok, "draw 0.5 is not below 0.4")
	assert.Equal(t, ReplayIdle, r.State())

	id, ok := r.MaybeTrigger(TriggerSession, 0.6)
	assert.True(t, ok)

	joined, ok := r.MaybeTrigger(TriggerError, 0)
	assert.True(t, ok, "an active capture is always joined")
	assert.Equal(t, id, joined)
}

func TestRecorder_StopFinalizesEarly(t *testing.T) {
	r, clk, out := newTestRecorder(t, DefaultReplayConfig())
	r.Trigger(TriggerManual)
	r.Stop()

	require.Len(t, out.events, 1)
	assert.Equal(t, ReplayIdle, r.State())
	clk.Advance(time.Minute)
	assert.Len(t, out.events, 1)
}

func TestRecorder_UnknownCodec(t *testing.T) {
	cfg := DefaultReplayConfig()
	cfg.Codec = "brotli"
	_, err := NewRecorder(cfg, clock.NewFake(testEpoch), func(RawEvent) {}, nil, nil)
	assert.Error(t, err)
}

func TestReplayCodecs_RoundTrip(t *testing.T) {
	data := []byte(strings.Repeat(`{"kind":"mutation","timestamp":1700000000000},`, 50))
	for _, name := range []string{ReplayCodecZstd, ReplayCodecLZ4, ReplayCodecNone} {
		codec, err := codecFor(name)
		require.NoError(t, err)
		enc, err := codec.Encode(data)
		require.NoError(t, err)
		dec, err := codec.Decode(enc, len(data))
		require.NoError(t, err)
		assert.Equal(t, data, dec, name)
	}
}
