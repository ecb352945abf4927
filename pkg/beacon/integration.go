// integration.go defines the Integration capability and its closed set
// of kinds.

package beacon

import "fmt"

// IntegrationKind names one of the supported integrations.
type IntegrationKind string

const (
	IntegrationErrors         IntegrationKind = "errors"
	IntegrationMetrics        IntegrationKind = "metrics"
	IntegrationSession        IntegrationKind = "session"
	IntegrationHTTPError      IntegrationKind = "http_error"
	IntegrationResourceError  IntegrationKind = "resource_error"
	IntegrationPerformance    IntegrationKind = "performance"
	IntegrationBreadcrumb     IntegrationKind = "breadcrumb"
	IntegrationSessionReplay  IntegrationKind = "session_replay"
	IntegrationResourceTiming IntegrationKind = "resource_timing"
	IntegrationSampling       IntegrationKind = "sampling"
	IntegrationDeduplication  IntegrationKind = "deduplication"
)

var knownIntegrations = map[IntegrationKind]struct{}{
	IntegrationErrors:         {},
	IntegrationMetrics:        {},
	IntegrationSession:        {},
	IntegrationHTTPError:      {},
	IntegrationResourceError:  {},
	IntegrationPerformance:    {},
	IntegrationBreadcrumb:     {},
	IntegrationSessionReplay:  {},
	IntegrationResourceTiming: {},
	IntegrationSampling:       {},
	IntegrationDeduplication:  {},
}

// Integration is a signal producer or pipeline customization installed
// on a Client.
//
// Setup runs once inside NewClient, before the pipeline starts, so it
// may call the Client's setup-only methods (OverrideSampleRate,
// ExemptFromDedup, EnableReplay, OnSessionStart). Teardown runs during
// Close, in reverse installation order, after the pipeline has drained.
// Integrations must never let their own failures reach host code.
type Integration interface {
	Kind() IntegrationKind
	Setup(c *Client) error
	Teardown()
}

// checkIntegrations rejects unknown kinds and duplicates.
func checkIntegrations(list []Integration) error {
	seen := make(map[IntegrationKind]bool, len(list))
	for _, in := range list {
		if in == nil {
			return fmt.Errorf("beacon: nil integration")
		}
		kind := in.Kind()
		if _, ok := knownIntegrations[kind]; !ok {
			return fmt.Errorf("beacon: unknown integration kind %q", kind)
		}
		if seen[kind] {
			return fmt.Errorf("beacon: integration %q installed twice", kind)
		}
		seen[kind] = true
	}
	return nil
}
