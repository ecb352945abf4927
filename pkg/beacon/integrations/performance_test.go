package integrations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

func TestRateVital(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"LCP", 2400, RatingGood},
		{"LCP", 2500, RatingGood},
		{"LCP", 3000, RatingNeedsImprovement},
		{"LCP", 4001, RatingPoor},
		{"CLS", 0.05, RatingGood},
		{"CLS", 0.3, RatingPoor},
		{"INP", 450, RatingNeedsImprovement},
		{"custom", 1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RateVital(tt.name, tt.value), "%s=%v", tt.name, tt.value)
	}
}

func TestPerformance_ObserveAndVitals(t *testing.T) {
	perf := NewPerformance()
	c, _, sender := newClient(t, beacon.DefaultConfig(), perf)
	ctx := context.Background()

	perf.Observe(ctx, "db.query", 12.5, "ms")
	perf.Observe(ctx, "db.query", 14, "ms")
	perf.ReportVital(ctx, "LCP", 3000)
	perf.ReportVital(ctx, "CLS", 0.05)
	flush(t, c)

	measures := sender.recordsOf(beacon.CategoryPerformance)
	require.Len(t, measures, 2, "measurements are exempt from deduplication")
	assert.Equal(t, 12.5, measures[0].Fields["perf_value"])
	assert.Equal(t, 14.0, measures[1].Fields["perf_value"])

	vitals := sender.recordsOf(beacon.CategoryWebVital)
	require.Len(t, vitals, 2)
	assert.Equal(t, RatingNeedsImprovement, vitals[0].Fields["vital_rating"])
	assert.Equal(t, "ms", vitals[0].Fields["vital_unit"])
	assert.Equal(t, RatingGood, vitals[1].Fields["vital_rating"])
	assert.NotContains(t, vitals[1].Fields, "vital_unit")
}

func TestPerformance_MeasureUsesClientClock(t *testing.T) {
	perf := NewPerformance()
	c, clk, sender := newClient(t, beacon.DefaultConfig(), perf)

	stop := perf.Measure(context.Background(), "checkout")
	clk.Advance(250 * time.Millisecond)
	stop()
	stop()
	flush(t, c)

	records := sender.recordsOf(beacon.CategoryPerformance)
	require.Len(t, records, 1)
	assert.Equal(t, "checkout", records[0].Fields["perf_name"])
	assert.Equal(t, 250.0, records[0].Fields["perf_value"])
}
