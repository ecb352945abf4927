// sampling.go implements the Sampling integration.

package integrations

import (
	"maps"
	"slices"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// Sampling overrides the sample rate of individual categories.
type Sampling struct {
	rates map[beacon.Category]float64
}

// NewSampling creates the Sampling integration.
func NewSampling(rates map[beacon.Category]float64) *Sampling {
	return &Sampling{rates: maps.Clone(rates)}
}

func (s *Sampling) Kind() beacon.IntegrationKind { return beacon.IntegrationSampling }

func (s *Sampling) Setup(c *beacon.Client) error {
	for _, cat := range slices.Sorted(maps.Keys(s.rates)) {
		if err := c.OverrideSampleRate(cat, s.rates[cat]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sampling) Teardown() {}
