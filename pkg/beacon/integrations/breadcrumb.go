// breadcrumb.go implements the Breadcrumb integration: manual
// breadcrumbs and a zapcore.Core that turns log entries into
// breadcrumbs.

package integrations

import (
	"fmt"
	"maps"

	"go.uber.org/zap/zapcore"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// BreadcrumbOption configures the Breadcrumb integration.
type BreadcrumbOption func(*Breadcrumb)

// WithBreadcrumbEvents also captures every breadcrumb as a breadcrumb
// event, delivered on the auxiliary tier.
func WithBreadcrumbEvents() BreadcrumbOption {
	return func(b *Breadcrumb) {
		b.events = true
	}
}

// WithLogLevel sets the lowest log level Core records.
func WithLogLevel(level zapcore.Level) BreadcrumbOption {
	return func(b *Breadcrumb) {
		b.level = level
	}
}

// Breadcrumb records host activity that is attached to later events.
type Breadcrumb struct {
	binding
	level  zapcore.Level
	events bool
}

// NewBreadcrumb creates the Breadcrumb integration. Core records Info
// and above unless WithLogLevel says otherwise.
func NewBreadcrumb(opts ...BreadcrumbOption) *Breadcrumb {
	b := &Breadcrumb{level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breadcrumb) Kind() beacon.IntegrationKind { return beacon.IntegrationBreadcrumb }

func (b *Breadcrumb) Setup(c *beacon.Client) error { return b.bind(c) }

func (b *Breadcrumb) Teardown() { b.unbind() }

// Add records a breadcrumb.
func (b *Breadcrumb) Add(crumb beacon.Breadcrumb) {
	c := b.bound()
	if c == nil {
		return
	}
	c.AddBreadcrumb(crumb)
	if b.events {
		c.Capture(beacon.RawEvent{
			Category:  beacon.CategoryBreadcrumb,
			Name:      crumb.Category,
			Timestamp: crumb.Timestamp,
			Message:   crumb.Message,
			Fields:    map[string]any{"breadcrumb_level": crumb.Level},
		})
	}
}

// Core returns a zapcore.Core that records log entries as breadcrumbs.
// Tee it with the host's own core:
//
//	logger := zap.New(zapcore.NewTee(core, crumbs.Core()))
func (b *Breadcrumb) Core() zapcore.Core {
	return &breadcrumbCore{owner: b}
}

type breadcrumbCore struct {
	owner  *Breadcrumb
	fields map[string]string
}

func (c *breadcrumbCore) Enabled(level zapcore.Level) bool {
	return level >= c.owner.level
}

func (c *breadcrumbCore) With(fields []zapcore.Field) zapcore.Core {
	return &breadcrumbCore{owner: c.owner, fields: c.merge(fields)}
}

func (c *breadcrumbCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return ce.AddCore(entry, c)
	}
	return ce
}

func (c *breadcrumbCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	category := entry.LoggerName
	if category == "" {
		category = "log"
	}
	c.owner.Add(beacon.Breadcrumb{
		Timestamp: entry.Time,
		Category:  category,
		Message:   entry.Message,
		Level:     entry.Level.String(),
		Data:      c.merge(fields),
	})
	return nil
}

func (c *breadcrumbCore) Sync() error { return nil }

// merge flattens zap fields into breadcrumb data.
func (c *breadcrumbCore) merge(fields []zapcore.Field) map[string]string {
	if len(fields) == 0 {
		return c.fields
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	out := maps.Clone(c.fields)
	if out == nil {
		out = make(map[string]string, len(enc.Fields))
	}
	for k, v := range enc.Fields {
		out[k] = fmt.Sprint(v)
	}
	return out
}
