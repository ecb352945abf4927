// transport.go batches tier queues into sends and routes failures to the
// offline store.

package beacon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

// Transport owns one queue and flush timer per tier, the offline store
// and its retry loop.
type Transport struct {
	clock         clock.Clock
	logger        *zap.Logger
	metrics       *pipelineMetrics
	sender        Sender
	offline       *OfflineStore
	appID         string
	maxEventBytes int
	sendTimeout   time.Duration

	queues map[Tier]*tierQueue
	retry  *Task

	online  atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

type transportParams struct {
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *pipelineMetrics
	sender    Sender
	appID     string
	config    TransportConfig
	layered   *LayeredTransportConfig
	persister OfflinePersister
}

func newTransport(p transportParams) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		clock:         p.clock,
		logger:        p.logger,
		metrics:       p.metrics,
		sender:        p.sender,
		appID:         p.appID,
		maxEventBytes: p.config.MaxEventBytes,
		sendTimeout:   p.config.SendTimeout,
		queues:        make(map[Tier]*tierQueue, len(Tiers)),
		baseCtx:       ctx,
		cancel:        cancel,
	}
	t.online.Store(true)

	for tier, policy := range policies(p.config, p.layered) {
		q := newTierQueue(tier, policy)
		if policy.FlushInterval > 0 && !policy.immediate() {
			q.timer = NewTask(p.clock, policy.FlushInterval, func() { t.flush(q) })
		}
		t.queues[tier] = q
	}

	if p.config.EnableOffline {
		t.offline = newOfflineStore(p.clock, p.logger, p.metrics, p.config.OfflineQueueSize, p.config.MaxRetryAttempts, p.persister)
		t.retry = NewTask(p.clock, p.config.RetryInterval, t.retryOffline)
	}
	return t
}

// start restores persisted offline batches and arms every timer.
func (t *Transport) start() {
	if t.offline != nil {
		if err := t.offline.restore(); err != nil {
			t.logger.Warn("failed to restore offline store", zap.Error(err))
		}
		t.retry.Start()
	}
	for _, q := range t.queues {
		if q.timer != nil {
			q.timer.Start()
		}
	}
}

// Enqueue adds an event to its tier queue and flushes the queue when its
// policy says so.
func (t *Transport) Enqueue(ev *Event) {
	q, ok := t.queues[ev.Tier]
	if !ok {
		q = t.queues[TierNormal]
	}
	if q.push(ev) {
		t.flush(q)
	}
}

// FlushAll requests a flush of every tier.
func (t *Transport) FlushAll() {
	for _, tier := range Tiers {
		t.flush(t.queues[tier])
	}
}

// flush sends everything pending in q on a background goroutine. When a
// send is already in flight the request is deferred until it finishes.
func (t *Transport) flush(q *tierQueue) {
	if q.timer != nil {
		q.timer.Reset()
	}
	events, ok := q.begin(t.clock.Now())
	if !ok {
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("panic in tier flush",
					zap.Error(ErrCapture),
					zap.String("tier", string(q.tier)),
					zap.Any("panic", r))
				t.metrics.eventsDropped(ReasonInternalError, len(events))
			}
			if q.finish() {
				t.flush(q)
			}
		}()
		t.sendEvents(q, events)
	}()
}

func (t *Transport) sendEvents(q *tierQueue, events []*Event) {
	size := q.chunkSize()
	for len(events) > 0 {
		n := min(size, len(events))
		chunk := events[:n]
		events = events[n:]

		records := make([]Record, len(chunk))
		for i, ev := range chunk {
			if ev.dedup != nil {
				ev.dedup.seal()
			}
			records[i] = NewRecord(ev, t.appID)
		}

		batch, dropped := NewBatch(q.tier, records, t.maxEventBytes)
		for _, err := range dropped {
			t.logger.Warn("dropping unserializable event",
				zap.String("tier", string(q.tier)),
				zap.Error(err))
		}
		t.metrics.eventsDropped(ReasonSerialization, len(dropped))
		if batch.Len() == 0 {
			continue
		}

		if !t.online.Load() && t.offline != nil {
			t.offline.Enqueue(batch)
			continue
		}

		err := t.send(batch)
		t.metrics.batchSent(q.tier, err == nil)
		if err != nil {
			t.handleFailure(batch, err)
		}
	}
}

// send delivers one batch bounded by the send timeout. Expiry counts as
// a transport failure.
func (t *Transport) send(batch Batch) error {
	return t.sendCtx(t.baseCtx, batch)
}

func (t *Transport) sendCtx(ctx context.Context, batch Batch) error {
	if t.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.sendTimeout)
		defer cancel()
	}
	if err := t.sender.Send(ctx, batch); err != nil {
		if errors.Is(err, ErrTransport) {
			return err
		}
		return errors.Join(ErrTransport, err)
	}
	return nil
}

func (t *Transport) handleFailure(batch Batch, err error) {
	if t.offline != nil {
		t.logger.Debug("send failed, storing batch offline",
			zap.String("tier", string(batch.Tier)),
			zap.Int("batch_size", batch.Len()),
			zap.Error(err))
		t.offline.Enqueue(batch)
		return
	}

	reason := ReasonNetworkError
	var status *StatusError
	if errors.As(err, &status) {
		reason = ReasonSendError
	}
	t.metrics.eventsDropped(reason, batch.Len())
	t.logger.Warn("send failed, dropping batch",
		zap.String("tier", string(batch.Tier)),
		zap.Int("batch_size", batch.Len()),
		zap.String("reason", string(reason)),
		zap.Error(err))
}

// retryOffline runs one drain attempt in the background while online.
func (t *Transport) retryOffline() {
	if t.offline == nil || !t.online.Load() || t.closed.Load() {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		sent, err := t.offline.DrainAttempt(t.baseCtx, func(ctx context.Context, b Batch) error {
			err := t.sendCtx(ctx, b)
			t.metrics.batchSent(b.Tier, err == nil)
			return err
		})
		if sent > 0 {
			t.logger.Info("resent offline events", zap.Int("events", sent))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Debug("offline retry stopped", zap.Error(err))
		}
	}()
}

// SetOnline records connectivity. Going online starts a retry attempt
// immediately.
func (t *Transport) SetOnline(online bool) {
	was := t.online.Swap(online)
	if online && !was && t.retry != nil {
		t.retry.Reset()
		t.retry.Tick()
	}
}

// Offline returns the offline store, or nil when offline mode is off.
func (t *Transport) Offline() *OfflineStore {
	return t.offline
}

// wait blocks until every in-flight send has completed or ctx is done.
func (t *Transport) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending returns the number of queued events across tiers.
func (t *Transport) pending() int {
	n := 0
	for _, q := range t.queues {
		n += q.len()
	}
	return n
}

// shutdown issues a final flush of every tier without waiting for it,
// cancels outstanding sends after timeout and stops all timers.
func (t *Transport) shutdown(timeout time.Duration) {
	t.closed.Store(true)
	t.FlushAll()
	if timeout > 0 {
		t.clock.AfterFunc(timeout, t.cancel)
	} else {
		t.cancel()
	}
	for _, q := range t.queues {
		if q.timer != nil {
			q.timer.Stop()
		}
	}
	if t.retry != nil {
		t.retry.Stop()
	}
}
