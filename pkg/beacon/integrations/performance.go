// performance.go implements the Performance integration: custom
// measurements, timers and Core Web Vitals.

package integrations

import (
	"context"
	"sync"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// Vital ratings.
const (
	RatingGood             = "good"
	RatingNeedsImprovement = "needs-improvement"
	RatingPoor             = "poor"
)

// vitalThresholds are the upper bounds of "good" and "needs-improvement"
// for each Core Web Vital.
var vitalThresholds = map[string][2]float64{
	"LCP":  {2500, 4000},
	"FCP":  {1800, 3000},
	"FID":  {100, 300},
	"INP":  {200, 500},
	"TTFB": {800, 1800},
	"CLS":  {0.1, 0.25},
}

// RateVital returns the rating for a known vital, or "" otherwise.
func RateVital(name string, value float64) string {
	t, ok := vitalThresholds[name]
	if !ok {
		return ""
	}
	switch {
	case value <= t[0]:
		return RatingGood
	case value <= t[1]:
		return RatingNeedsImprovement
	}
	return RatingPoor
}

// Performance reports measurements. Every measurement is delivered;
// performance and web vital events are exempt from deduplication.
type Performance struct {
	binding
}

// NewPerformance creates the Performance integration.
func NewPerformance() *Performance {
	return &Performance{}
}

func (p *Performance) Kind() beacon.IntegrationKind { return beacon.IntegrationPerformance }

func (p *Performance) Setup(c *beacon.Client) error {
	for _, cat := range []beacon.Category{beacon.CategoryPerformance, beacon.CategoryWebVital} {
		if err := c.ExemptFromDedup(cat); err != nil {
			return err
		}
	}
	return p.bind(c)
}

func (p *Performance) Teardown() { p.unbind() }

// Observe captures one measurement.
func (p *Performance) Observe(ctx context.Context, name string, value float64, unit string) {
	if c := p.bound(); c != nil {
		c.CaptureContext(ctx, beacon.RawEvent{
			Category: beacon.CategoryPerformance,
			Name:     name,
			Value:    value,
			Unit:     unit,
		})
	}
}

// Measure starts a timer on the client clock. Calling the returned
// function captures the elapsed milliseconds; later calls do nothing.
func (p *Performance) Measure(ctx context.Context, name string) func() {
	c := p.bound()
	if c == nil {
		return func() {}
	}
	start := c.Clock().Now()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.Observe(ctx, name, millis(c.Clock().Now().Sub(start)), "ms")
		})
	}
}

// ReportVital captures a Core Web Vital. CLS is unitless; the others
// are in milliseconds.
func (p *Performance) ReportVital(ctx context.Context, name string, value float64) {
	c := p.bound()
	if c == nil {
		return
	}
	unit := "ms"
	if name == "CLS" {
		unit = ""
	}
	raw := beacon.RawEvent{
		Category: beacon.CategoryWebVital,
		Name:     name,
		Value:    value,
		Unit:     unit,
	}
	if rating := RateVital(name, value); rating != "" {
		raw.Fields = map[string]any{"vital_rating": rating}
	}
	c.CaptureContext(ctx, raw)
}
