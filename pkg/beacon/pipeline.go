// pipeline.go runs raw observations through dedup, sampling, enrichment
// and classification on the client's single pipeline goroutine.

package beacon

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// run consumes intake until it is closed and drained.
func (c *Client) run() {
	defer close(c.done)
	for item := range c.intake.queue {
		c.intake.releaseHeld()
		c.handle(item)
	}
	c.intake.releaseHeld()
}

func (c *Client) handle(item intakeItem) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in pipeline",
				zap.Error(ErrCapture),
				zap.String("category", string(item.raw.Category)),
				zap.Any("panic", r))
			c.metrics.eventsDropped(ReasonInternalError, 1)
		}
	}()

	switch item.kind {
	case intakeBarrier:
		close(item.barrier)
	case intakeSweep:
		c.dedup.Sweep(c.clock.Now())
		c.emitCorrections()
	default:
		c.process(item.raw, item.tags)
		c.emitCorrections()
	}
}

// process admits one raw observation. Duplicates and unsampled events
// stop here; everything else is enriched and queued on its tier.
func (c *Client) process(raw RawEvent, tags map[string]string) {
	now := c.clock.Now()
	if raw.Timestamp.IsZero() {
		raw.Timestamp = now
	}

	fp := Fingerprint(raw)
	dedupable := c.dedupable(raw.Category)
	if dedupable && c.dedup.Admit(fp, now) {
		c.metrics.eventDeduplicated(raw.Category)
		return
	}

	decision := c.sampler.Decide(raw, fp)
	if !decision.Sampled {
		c.metrics.eventsDropped(ReasonSampleRate, 1)
		return
	}

	ev := &Event{
		ID:          uuid.NewString(),
		Category:    raw.Category,
		Name:        raw.Name,
		Timestamp:   raw.Timestamp,
		Fingerprint: fp,
	}
	if dedupable {
		c.dedup.Attach(fp, ev)
	}

	c.enricher.Enrich(ev, raw, tags)
	ev.ReplayID = c.replayLink(raw)
	ev.Tier = c.classifier.Classify(raw.Category)
	ev.Sampled = true
	ev.SamplingRate = decision.Rate

	c.transport.Enqueue(ev)
	c.metrics.eventAdmitted(ev.Category, ev.Tier)
}

// dedupable reports whether a category takes part in deduplication.
// Replay captures and corrections are never folded.
func (c *Client) dedupable(cat Category) bool {
	switch cat {
	case CategoryReplay, CategoryDedupCorrection:
		return false
	}
	_, exempt := c.dedupExempt[cat]
	return !exempt
}

// replayLink returns the replay id an event belongs to. Errors may start
// a capture; other events join the one in progress.
func (c *Client) replayLink(raw RawEvent) string {
	if raw.ReplayID != "" {
		return raw.ReplayID
	}
	if c.recorder == nil {
		return ""
	}
	if raw.Category == CategoryError || raw.Category == CategoryCrash {
		id, _ := c.recorder.MaybeTrigger(TriggerError, c.cfg.Replay.OnErrorSampleRate)
		return id
	}
	id, _ := c.recorder.ActiveReplayID()
	return id
}

// emitCorrections queues a dedup_correction event for every window that
// closed with occurrences its delivered event could not count.
func (c *Client) emitCorrections() {
	for _, corr := range c.dedup.TakeCorrections() {
		orig := corr.Original
		ev := &Event{
			ID:           uuid.NewString(),
			Category:     CategoryDedupCorrection,
			Name:         orig.Name,
			Timestamp:    c.clock.Now(),
			Fingerprint:  orig.Fingerprint,
			Tier:         c.classifier.Classify(CategoryDedupCorrection),
			Sampled:      true,
			SamplingRate: 1,
			SessionID:    orig.SessionID,
			ReplayID:     orig.ReplayID,
			Payload: map[string]any{
				"dedup_original_id":       orig.ID,
				"dedup_original_category": string(orig.Category),
				"dedup_delta":             int64(corr.Delta),
			},
			dedup: &dedupCounter{count: corr.Total, sealed: true},
		}
		c.logger.Debug("emitting dedup correction",
			zap.String("original_id", orig.ID),
			zap.Int("total", corr.Total),
			zap.Int("delta", corr.Delta))
		c.transport.Enqueue(ev)
		c.metrics.eventAdmitted(ev.Category, ev.Tier)
	}
}
