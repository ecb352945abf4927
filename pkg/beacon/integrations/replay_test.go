package integrations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

func TestSessionReplay_RecordsAndTriggers(t *testing.T) {
	replay := NewSessionReplay(&beacon.ReplayConfig{
		PreWindow:  10 * time.Second,
		PostWindow: 10 * time.Second,
		MaxFrames:  100,
		Codec:      beacon.ReplayCodecNone,
	})
	c, clk, sender := newClient(t, beacon.DefaultConfig(), replay)
	require.True(t, c.Config().Replay.Enabled)

	replay.Record("click", map[string]any{"target": "#buy"})
	clk.Advance(time.Second)
	id, ok := replay.Trigger()
	require.True(t, ok)
	replay.Record("input", map[string]any{"password": "hunter2"})

	clk.Advance(10 * time.Second)
	flush(t, c)

	replays := sender.recordsOf(beacon.CategoryReplay)
	require.Len(t, replays, 1)
	assert.Equal(t, id, replays[0].ReplayID)
	assert.Equal(t, int64(2), replays[0].Fields["replay_event_count"])
	assert.Equal(t, []any{beacon.TriggerManual}, replays[0].Fields["replay_triggers"])

	frames, err := beacon.DecodeReplayFrames(replays[0].Fields)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "[REDACTED]", frames[1].Data["password"])
}
