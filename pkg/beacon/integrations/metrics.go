// metrics.go implements the Metrics integration: periodic runtime
// snapshots emitted as metric events.

package integrations

import (
	"time"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// DefaultMetricsInterval is used when NewMetrics gets a non-positive
// interval.
const DefaultMetricsInterval = time.Minute

// Metrics samples runtime state on the client clock. Every sample is
// delivered; metric events are exempt from deduplication.
type Metrics struct {
	binding
	interval time.Duration
	task     *beacon.Task
}

// NewMetrics creates the Metrics integration.
func NewMetrics(interval time.Duration) *Metrics {
	if interval <= 0 {
		interval = DefaultMetricsInterval
	}
	return &Metrics{interval: interval}
}

func (m *Metrics) Kind() beacon.IntegrationKind { return beacon.IntegrationMetrics }

func (m *Metrics) Setup(c *beacon.Client) error {
	if err := c.ExemptFromDedup(beacon.CategoryMetric); err != nil {
		return err
	}
	if err := m.bind(c); err != nil {
		return err
	}
	m.task = beacon.NewTask(c.Clock(), m.interval, m.Collect)
	m.task.Start()
	return nil
}

func (m *Metrics) Teardown() {
	if m.task != nil {
		m.task.Stop()
	}
	m.unbind()
}

// Collect captures one snapshot now.
func (m *Metrics) Collect() {
	c := m.bound()
	if c == nil {
		return
	}
	now := c.Clock().Now()
	state := beacon.CaptureSystemState(beacon.ProcessStart(), now)
	for _, ev := range state.MetricEvents(now) {
		c.Capture(ev)
	}
}
