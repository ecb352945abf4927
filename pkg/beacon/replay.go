// replay.go records interaction frames in a time-bounded ring and
// finalizes a capture around a triggering moment.

package beacon

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

// ReplayConfig controls the replay recorder.
type ReplayConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PreWindow is how much history before a trigger is kept.
	PreWindow time.Duration `mapstructure:"pre_window"`

	// PostWindow is how long recording continues after a trigger.
	PostWindow time.Duration `mapstructure:"post_window"`

	// MaxFrames bounds the ring and the frames of one capture.
	MaxFrames int `mapstructure:"max_frames"`

	// OnErrorSampleRate is the probability that an error starts a
	// capture.
	OnErrorSampleRate float64 `mapstructure:"on_error_sample_rate"`

	// SessionSampleRate is the probability that a new session starts a
	// capture.
	SessionSampleRate float64 `mapstructure:"session_sample_rate"`

	// Codec is zstd, lz4 or none.
	Codec string `mapstructure:"codec"`
}

// DefaultReplayConfig returns the recorder defaults. Recording is off
// until enabled.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		PreWindow:         10 * time.Second,
		PostWindow:        10 * time.Second,
		MaxFrames:         1000,
		OnErrorSampleRate: 1,
		Codec:             ReplayCodecZstd,
	}
}

// Trigger reasons.
const (
	TriggerError   = "error"
	TriggerManual  = "manual"
	TriggerSession = "session"
)

// Frame is one incremental interaction or DOM snapshot.
type Frame struct {
	Timestamp time.Time
	Kind      string
	Data      map[string]any
}

// ReplayState is the recorder's lifecycle state.
type ReplayState int

const (
	ReplayIdle ReplayState = iota
	ReplayTriggered
	ReplayFinalizing
)

func (s ReplayState) String() string {
	switch s {
	case ReplayIdle:
		return "idle"
	case ReplayTriggered:
		return "triggered"
	case ReplayFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("ReplayState(%d)", int(s))
}

// Recorder owns the replay ring. While idle it keeps only the frames of
// the last PreWindow. A trigger freezes that history and keeps recording
// for PostWindow; the capture is then compressed and emitted as a replay
// raw event.
//
// A trigger arriving while a capture is in progress joins that capture:
// it gets the same replay id and is listed in replay_triggers, and the
// post window is not extended. Once the post window has elapsed the
// capture is closed to new triggers, and the next trigger starts a fresh
// capture whose pre window may reuse frames the previous one recorded.
type Recorder struct {
	cfg    ReplayConfig
	clock  clock.Clock
	codec  replayCodec
	emit   func(RawEvent)
	draw   func() float64
	logger *zap.Logger

	mu        sync.Mutex
	state     ReplayState
	frames    []Frame
	replayID  string
	triggerAt time.Time
	triggers  []string
	timer     clock.Timer
}

// NewRecorder creates an idle recorder. emit receives finalized captures
// and must not block. A nil draw uses math/rand/v2.
func NewRecorder(cfg ReplayConfig, clk clock.Clock, emit func(RawEvent), draw func() float64, logger *zap.Logger) (*Recorder, error) {
	def := DefaultReplayConfig()
	if cfg.PreWindow <= 0 {
		cfg.PreWindow = def.PreWindow
	}
	if cfg.PostWindow <= 0 {
		cfg.PostWindow = def.PostWindow
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = def.MaxFrames
	}
	codec, err := codecFor(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if draw == nil {
		draw = rand.Float64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		cfg:    cfg,
		clock:  clk,
		codec:  codec,
		emit:   emit,
		draw:   draw,
		logger: logger,
	}, nil
}

// Record appends a frame. A zero timestamp is set to now.
func (r *Recorder) Record(f Frame) {
	if f.Timestamp.IsZero() {
		f.Timestamp = r.clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case ReplayIdle, ReplayFinalizing:
		r.frames = append(r.frames, f)
		r.pruneLocked(r.clock.Now())
	case ReplayTriggered:
		if len(r.frames) >= r.cfg.MaxFrames {
			return
		}
		r.frames = append(r.frames, f)
	}
}

// pruneLocked drops frames older than the pre window and the oldest
// frames beyond MaxFrames.
func (r *Recorder) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.cfg.PreWindow)
	drop := 0
	for drop < len(r.frames) && r.frames[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if over := len(r.frames) - drop - r.cfg.MaxFrames; over > 0 {
		drop += over
	}
	if drop > 0 {
		clear(r.frames[:drop])
		r.frames = r.frames[drop:]
	}
}

// Trigger starts a capture, or joins the one in progress. It returns the
// replay id the trigger belongs to.
func (r *Recorder) Trigger(reason string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == ReplayTriggered {
		r.triggers = append(r.triggers, reason)
		return r.replayID
	}

	now := r.clock.Now()
	r.pruneLocked(now)
	r.state = ReplayTriggered
	r.replayID = uuid.NewString()
	r.triggerAt = now
	r.triggers = []string{reason}
	r.timer = r.clock.AfterFunc(r.cfg.PostWindow, r.finalize)
	r.logger.Debug("replay triggered",
		zap.String("replay_id", r.replayID),
		zap.String("reason", reason))
	return r.replayID
}

// MaybeTrigger triggers with probability rate. While a capture is in
// progress it always joins it.
func (r *Recorder) MaybeTrigger(reason string, rate float64) (string, bool) {
	r.mu.Lock()
	active := r.state == ReplayTriggered
	r.mu.Unlock()

	if !active && !(r.draw() < clampRate(rate)) {
		return "", false
	}
	return r.Trigger(reason), true
}

// ActiveReplayID returns the id of the capture in progress.
func (r *Recorder) ActiveReplayID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReplayTriggered {
		return "", false
	}
	return r.replayID, true
}

// State returns the current lifecycle state.
func (r *Recorder) State() ReplayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Stop cancels the post window and finalizes a capture in progress
// right away.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.state != ReplayTriggered {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	r.finalize()
}

func (r *Recorder) finalize() {
	r.mu.Lock()
	if r.state != ReplayTriggered {
		r.mu.Unlock()
		return
	}
	r.state = ReplayFinalizing
	start := r.triggerAt.Add(-r.cfg.PreWindow)
	end := r.triggerAt.Add(r.cfg.PostWindow)
	var captured []Frame
	for _, f := range r.frames {
		if !f.Timestamp.Before(start) && !f.Timestamp.After(end) {
			captured = append(captured, f)
		}
	}
	replayID, triggerAt, triggers := r.replayID, r.triggerAt, r.triggers
	r.mu.Unlock()

	raw, err := r.buildEvent(replayID, triggerAt, start, end, triggers, captured)

	r.mu.Lock()
	// A trigger during serialization has already started the next capture.
	if r.replayID == replayID {
		r.state = ReplayIdle
		r.replayID = ""
		r.triggers = nil
		r.timer = nil
		r.pruneLocked(r.clock.Now())
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("dropping replay capture",
			zap.String("replay_id", replayID),
			zap.Error(err))
		return
	}
	r.emit(raw)
}

func (r *Recorder) buildEvent(replayID string, triggerAt, start, end time.Time, triggers []string, frames []Frame) (RawEvent, error) {
	wire := make([]any, len(frames))
	for i, f := range frames {
		wire[i] = frameToWire(f)
	}
	data, err := appendSlice(nil, wire)
	if err != nil {
		return RawEvent{}, err
	}

	reasons := make([]any, len(triggers))
	for i, t := range triggers {
		reasons[i] = t
	}
	fields := map[string]any{
		"replay_event_count": int64(len(frames)),
		"replay_duration_ms": end.Sub(start).Milliseconds(),
		"replay_start":       start.UnixMilli(),
		"replay_end":         end.UnixMilli(),
		"replay_trigger":     triggers[0],
		"replay_triggers":    reasons,
		"replay_raw_size":    int64(len(data)),
	}

	codec := r.codec
	compressed, err := codec.Encode(data)
	if errors.Is(err, errIncompressible) {
		codec, compressed, err = noneCodec{}, data, nil
	}
	if err != nil {
		return RawEvent{}, err
	}
	fields["replay_encoding"] = codec.Name()
	fields["replay_compressed_size"] = int64(len(compressed))
	if codec.Name() == ReplayCodecNone {
		fields["replay_events"] = wire
	} else {
		fields["replay_data"] = base64.StdEncoding.EncodeToString(compressed)
	}

	return RawEvent{
		Category:  CategoryReplay,
		Name:      "session_replay",
		Timestamp: triggerAt,
		ReplayID:  replayID,
		Fields:    fields,
	}, nil
}

func frameToWire(f Frame) map[string]any {
	m := map[string]any{
		"timestamp": f.Timestamp.UnixMilli(),
		"kind":      f.Kind,
	}
	if f.Data != nil {
		m["data"] = f.Data
	}
	return m
}

// DecodeReplayFrames restores the frames of a replay record's fields.
func DecodeReplayFrames(fields map[string]any) ([]Frame, error) {
	encoding, _ := fields["replay_encoding"].(string)

	var items []any
	if encoding == ReplayCodecNone || encoding == "" {
		items, _ = fields["replay_events"].([]any)
	} else {
		codec, err := codecFor(encoding)
		if err != nil {
			return nil, err
		}
		encoded, _ := fields["replay_data"].(string)
		compressed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("replay_data: %w", err)
		}
		rawSize, _ := fields["replay_raw_size"].(int64)
		data, err := codec.Decode(compressed, int(rawSize))
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var decoded []any
		if err := dec.Decode(&decoded); err != nil {
			return nil, fmt.Errorf("replay frames: %w", err)
		}
		items = restoreNumbers(decoded).([]any)
	}

	frames := make([]Frame, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("replay frame has type %T", item)
		}
		ts, _ := m["timestamp"].(int64)
		kind, _ := m["kind"].(string)
		data, _ := m["data"].(map[string]any)
		frames = append(frames, Frame{Timestamp: time.UnixMilli(ts), Kind: kind, Data: data})
	}
	return frames, nil
}
