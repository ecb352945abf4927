// client.go provides the Client, the explicit context object that owns
// the pipeline, and its functional options.

package beacon

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/pkg/beacon/clock"
)

// ErrStarted is returned by setup-only methods called after NewClient
// has returned.
var ErrStarted = errors.New("beacon: client already started")

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	sender        Sender
	logger        *zap.Logger
	clock         clock.Clock
	meterProvider metric.MeterProvider
	scrubber      *Scrubber
	draw          func() float64
	persister     OfflinePersister
	integrations  []Integration
}

// WithSender sets the batch destination. Without one, batches are
// accepted and discarded.
func WithSender(s Sender) Option {
	return func(o *clientOptions) {
		o.sender = s
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithClock sets the time source for every timer in the client.
func WithClock(c clock.Clock) Option {
	return func(o *clientOptions) {
		o.clock = c
	}
}

// WithMeterProvider sets the provider for pipeline counters. The default
// is the global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *clientOptions) {
		o.meterProvider = mp
	}
}

// WithScrubber configures redaction with a custom configuration.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(o *clientOptions) {
		o.scrubber = NewScrubber(cfg)
	}
}

// WithoutScrubbing disables redaction.
func WithoutScrubbing() Option {
	return func(o *clientOptions) {
		o.scrubber = nil
	}
}

// WithRandom sets the uniform [0,1) source used for sampling and replay
// trigger draws.
func WithRandom(draw func() float64) Option {
	return func(o *clientOptions) {
		o.draw = draw
	}
}

// WithOfflinePersister persists the offline store, typically with
// NewFileStore.
func WithOfflinePersister(p OfflinePersister) Option {
	return func(o *clientOptions) {
		o.persister = p
	}
}

// WithIntegrations installs integrations, in order.
func WithIntegrations(list ...Integration) Option {
	return func(o *clientOptions) {
		o.integrations = append(o.integrations, list...)
	}
}

// Client captures observations and delivers them. Capture methods never
// block and never fail; problems are logged and counted instead.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	clock    clock.Clock
	metrics  *pipelineMetrics
	sender   Sender
	draw     func() float64
	scrubber *Scrubber

	scope       *Scope
	sessions    *SessionTracker
	crumbs      *BreadcrumbBuffer
	dedup       *Deduplicator
	dedupExempt map[Category]struct{}
	sampler     *Sampler
	enricher    *Enricher
	classifier  *Classifier
	transport   *Transport
	recorder    *Recorder

	intake       *intake
	sweep        *Task
	integrations []Integration

	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewClient validates cfg, installs the integrations and starts the
// pipeline.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	o := &clientOptions{scrubber: NewScrubber(DefaultScrubberConfig())}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("beacon: invalid config: %w", err)
	}
	if err := checkIntegrations(o.integrations); err != nil {
		return nil, err
	}

	// Default to a noop sender if none provided
	if o.sender == nil {
		o.sender = noopSender{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.draw == nil {
		o.draw = rand.Float64
	}

	classifier, err := NewClassifier(cfg.Tiers)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:         cfg,
		logger:      o.logger,
		clock:       o.clock,
		metrics:     newPipelineMetrics(o.meterProvider),
		sender:      o.sender,
		draw:        o.draw,
		scrubber:    o.scrubber,
		scope:       NewScope(),
		sessions:    NewSessionTracker(cfg.Session),
		crumbs:      NewBreadcrumbBuffer(cfg.MaxBreadcrumbs),
		dedup:       NewDeduplicator(cfg.Dedup),
		dedupExempt: make(map[Category]struct{}),
		sampler:     NewSampler(cfg.Sampling, o.draw),
		classifier:  classifier,
		done:        make(chan struct{}),
	}
	c.enricher = NewEnricher(c.clock, c.sessions, c.crumbs, cfg.MaxBreadcrumbs, c.scope, o.scrubber)
	c.transport = newTransport(transportParams{
		clock:     c.clock,
		logger:    c.logger,
		metrics:   c.metrics,
		sender:    c.sender,
		appID:     cfg.AppID,
		config:    cfg.Transport,
		layered:   cfg.LayeredTransport,
		persister: o.persister,
	})
	c.intake = newIntake(cfg.IntakeQueueSize, c.intakeDropped)
	c.sweep = NewTask(c.clock, c.dedup.window, func() {
		c.intake.push(intakeItem{kind: intakeSweep})
	})

	if cfg.Replay.Enabled {
		if err := c.EnableReplay(nil); err != nil {
			return nil, err
		}
	}

	for _, in := range o.integrations {
		if err := in.Setup(c); err != nil {
			c.teardown()
			return nil, fmt.Errorf("beacon: setting up %s integration: %w", in.Kind(), err)
		}
		c.integrations = append(c.integrations, in)
	}

	c.start()
	return c, nil
}

func (c *Client) start() {
	if c.recorder != nil && c.cfg.Replay.SessionSampleRate > 0 {
		rate := c.cfg.Replay.SessionSampleRate
		c.sessions.OnStart(func(Session) {
			c.recorder.MaybeTrigger(TriggerSession, rate)
		})
	}
	c.started.Store(true)
	c.transport.start()
	c.sweep.Start()
	go c.run()
	c.logger.Debug("beacon client started",
		zap.String("app_id", c.cfg.AppID),
		zap.Bool("layered", c.cfg.LayeredTransport != nil),
		zap.Bool("offline", c.cfg.Transport.EnableOffline),
		zap.Bool("replay", c.recorder != nil))
}

func (c *Client) intakeDropped(item intakeItem) {
	if item.kind != intakeEvent {
		return
	}
	c.metrics.eventsDropped(ReasonQueueOverflow, 1)
	c.logger.Warn("intake full, dropping oldest observation",
		zap.Error(ErrQueueOverflow),
		zap.String("category", string(item.raw.Category)))
}

// Capture submits a raw observation. It never blocks; after Close it is
// a no-op.
func (c *Client) Capture(raw RawEvent) {
	c.submit(raw, nil)
}

// CaptureContext is Capture with the tags attached to ctx by WithTag.
func (c *Client) CaptureContext(ctx context.Context, raw RawEvent) {
	tags, _ := TagsFromContext(ctx)
	c.submit(raw, tags)
}

// CaptureError submits err as an error event with the caller's stack.
// A nil err is ignored.
func (c *Client) CaptureError(err error) {
	c.captureError(context.Background(), err)
}

// CaptureErrorContext is CaptureError with the tags attached to ctx.
func (c *Client) CaptureErrorContext(ctx context.Context, err error) {
	c.captureError(ctx, err)
}

func (c *Client) captureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	c.CaptureContext(ctx, RawEvent{
		Category:  CategoryError,
		ErrorType: errorType(err),
		Message:   err.Error(),
		// Skip captureError and the exported method that called it.
		Stack: callerStack(2),
	})
}

func (c *Client) submit(raw RawEvent, tags map[string]string) {
	if !c.intake.push(intakeItem{kind: intakeEvent, raw: raw, tags: tags}) {
		c.logger.Debug("capture after close ignored", zap.String("category", string(raw.Category)))
	}
}

// AddBreadcrumb records host activity attached to later events.
func (c *Client) AddBreadcrumb(b Breadcrumb) {
	if b.Timestamp.IsZero() {
		b.Timestamp = c.clock.Now()
	}
	c.crumbs.Add(b)
}

// SetTag sets a tag on every later event. An empty value removes it.
func (c *Client) SetTag(key, value string) {
	c.scope.SetTag(key, value)
}

// SetUser sets the user attached to every later event.
func (c *Client) SetUser(u User) {
	c.scope.SetUser(u)
}

// RecordFrame scrubs and appends a replay frame. It is a no-op when
// replay is off.
func (c *Client) RecordFrame(f Frame) {
	if c.recorder == nil {
		return
	}
	if c.scrubber != nil {
		f.Data = c.scrubber.ScrubFields(f.Data)
	}
	c.recorder.Record(f)
}

// TriggerReplay starts a manual replay capture, or joins the one in
// progress. It returns the replay id, or false when replay is off.
func (c *Client) TriggerReplay() (string, bool) {
	if c.recorder == nil || c.closed.Load() {
		return "", false
	}
	return c.recorder.Trigger(TriggerManual), true
}

// SetOnline records connectivity. While offline, batches go straight to
// the offline store and the retry loop is paused.
func (c *Client) SetOnline(online bool) {
	c.transport.SetOnline(online)
}

// OverrideSampleRate sets the sample rate for one category. Setup only.
func (c *Client) OverrideSampleRate(cat Category, rate float64) error {
	if c.started.Load() {
		return ErrStarted
	}
	if rate < 0 || rate > 1 {
		return fmt.Errorf("beacon: sample rate for %s must be in [0,1], got %v", cat, rate)
	}
	c.sampler.setRate(cat, rate)
	return nil
}

// ExemptFromDedup delivers every occurrence of cat. Setup only.
func (c *Client) ExemptFromDedup(cat Category) error {
	if c.started.Load() {
		return ErrStarted
	}
	c.dedupExempt[cat] = struct{}{}
	return nil
}

// EnableReplay turns the replay recorder on. A non-nil cfg replaces the
// replay section of the client configuration. Setup only.
func (c *Client) EnableReplay(cfg *ReplayConfig) error {
	if c.started.Load() {
		return ErrStarted
	}
	if cfg != nil {
		c.cfg.Replay = *cfg
		c.recorder = nil
	}
	c.cfg.Replay.Enabled = true
	if c.recorder != nil {
		return nil
	}
	r, err := NewRecorder(c.cfg.Replay, c.clock, func(raw RawEvent) {
		c.intake.push(intakeItem{kind: intakeEvent, raw: raw})
	}, c.draw, c.logger)
	if err != nil {
		return fmt.Errorf("beacon: replay: %w", err)
	}
	c.recorder = r
	return nil
}

// OnSessionStart registers fn to run on the pipeline goroutine when a
// new session begins. fn must not block. Setup only.
func (c *Client) OnSessionStart(fn func(Session)) error {
	if c.started.Load() {
		return ErrStarted
	}
	c.sessions.OnStart(fn)
	return nil
}

// Flush waits until every observation captured before the call has
// passed the pipeline and every tier has been sent, or ctx is done.
func (c *Client) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := c.intake.pushWait(ctx, intakeItem{kind: intakeBarrier, barrier: barrier}); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	select {
	case <-barrier:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.transport.FlushAll()
	return c.transport.wait(ctx)
}

// Close stops intake, drains the pipeline, closes open dedup windows,
// issues a final flush of every tier bounded by ShutdownTimeout and
// releases the sender. Later calls
// return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.sweep.Stop()
		if c.recorder != nil {
			c.recorder.Stop()
		}
		c.intake.close()
		<-c.done
		c.dedup.CloseAll()
		c.emitCorrections()

		c.transport.shutdown(c.cfg.ShutdownTimeout)
		ctx := context.Background()
		if c.cfg.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
			defer cancel()
		}
		var errs []error
		if err := c.transport.wait(ctx); err != nil {
			c.logger.Warn("shutdown flush did not complete",
				zap.Int("pending", c.transport.pending()),
				zap.Error(err))
			errs = append(errs, err)
		}

		c.teardown()
		if err := c.sender.Close(); err != nil {
			errs = append(errs, fmt.Errorf("beacon: closing sender: %w", err))
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}

func (c *Client) teardown() {
	for _, in := range slices.Backward(c.integrations) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("panic in integration teardown",
						zap.String("integration", string(in.Kind())),
						zap.Any("panic", r))
				}
			}()
			in.Teardown()
		}()
	}
	c.integrations = nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() Config { return c.cfg }

// Logger returns the client's logger.
func (c *Client) Logger() *zap.Logger { return c.logger }

// Clock returns the client's time source.
func (c *Client) Clock() clock.Clock { return c.clock }

// Session returns the current session, or false before the first event.
func (c *Client) Session() (Session, bool) { return c.sessions.Current() }

// Offline returns the offline store, or nil when offline mode is off.
func (c *Client) Offline() *OfflineStore { return c.transport.Offline() }

// Replay returns the replay recorder, or nil when replay is off.
func (c *Client) Replay() *Recorder { return c.recorder }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

// noopSender discards every batch.
type noopSender struct{}

func (noopSender) Send(context.Context, Batch) error { return nil }

func (noopSender) Close() error { return nil }
