// metrics.go records pipeline counters through OpenTelemetry.

package beacon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/strongdm/ai-beacon/pkg/beacon"

// pipelineMetrics holds the client's instruments. Instrument creation
// errors fall back to no-op instruments from the same meter.
type pipelineMetrics struct {
	admitted     metric.Int64Counter
	deduplicated metric.Int64Counter
	dropped      metric.Int64Counter
	batches      metric.Int64Counter
	offline      metric.Int64UpDownCounter
}

func newPipelineMetrics(mp metric.MeterProvider) *pipelineMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &pipelineMetrics{}
	m.admitted, _ = meter.Int64Counter("beacon.events.admitted",
		metric.WithDescription("Events admitted into a tier queue"))
	m.deduplicated, _ = meter.Int64Counter("beacon.events.deduplicated",
		metric.WithDescription("Occurrences folded into an earlier event"))
	m.dropped, _ = meter.Int64Counter("beacon.events.dropped",
		metric.WithDescription("Events discarded, by reason"))
	m.batches, _ = meter.Int64Counter("beacon.batches.sent",
		metric.WithDescription("Batch send attempts, by tier and outcome"))
	m.offline, _ = meter.Int64UpDownCounter("beacon.offline.events",
		metric.WithDescription("Events held in the offline store"))
	return m
}

func (m *pipelineMetrics) eventAdmitted(category Category, tier Tier) {
	if m == nil || m.admitted == nil {
		return
	}
	m.admitted.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", string(category)),
		attribute.String("tier", string(tier)),
	))
}

func (m *pipelineMetrics) eventDeduplicated(category Category) {
	if m == nil || m.deduplicated == nil {
		return
	}
	m.deduplicated.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("category", string(category)),
	))
}

func (m *pipelineMetrics) eventsDropped(reason DiscardReason, n int) {
	if m == nil || m.dropped == nil || n <= 0 {
		return
	}
	m.dropped.Add(context.Background(), int64(n), metric.WithAttributes(
		attribute.String("reason", string(reason)),
	))
}

func (m *pipelineMetrics) batchSent(tier Tier, ok bool) {
	if m == nil || m.batches == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.batches.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tier", string(tier)),
		attribute.String("outcome", outcome),
	))
}

func (m *pipelineMetrics) offlineDelta(n int) {
	if m == nil || m.offline == nil || n == 0 {
		return
	}
	m.offline.Add(context.Background(), int64(n))
}
