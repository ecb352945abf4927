// sampler.go implements per-category probabilistic admission.

package beacon

import (
	"maps"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// SamplingConfig holds the per-category admission rates, each in [0,1].
type SamplingConfig struct {
	ErrorSampleRate       float64 `mapstructure:"error_sample_rate"`
	PerformanceSampleRate float64 `mapstructure:"performance_sample_rate"`
	WebVitalSampleRate    float64 `mapstructure:"web_vital_sample_rate"`

	// Deterministic derives the draw from a hash of the occurrence ID
	// (or the fingerprint when no ID is set) instead of a random source,
	// so resubmissions of the same logical event get the same decision.
	Deterministic bool `mapstructure:"deterministic"`

	// Bypass lists categories that are always admitted.
	Bypass []Category `mapstructure:"bypass"`

	// CategoryRates overrides the rate of individual categories.
	CategoryRates map[Category]float64 `mapstructure:"category_rates"`
}

// Decision is the sampler's verdict for one event.
type Decision struct {
	Sampled bool
	Rate    float64
}

// Sampler decides whether an event is admitted for delivery.
type Sampler struct {
	cfg  SamplingConfig
	draw func() float64
}

// NewSampler creates a Sampler. A nil draw uses math/rand/v2.
func NewSampler(cfg SamplingConfig, draw func() float64) *Sampler {
	if draw == nil {
		draw = rand.Float64
	}
	cfg.CategoryRates = maps.Clone(cfg.CategoryRates)
	if cfg.CategoryRates == nil {
		cfg.CategoryRates = make(map[Category]float64)
	}
	return &Sampler{cfg: cfg, draw: draw}
}

// setRate overrides the rate of one category. Only called while the
// client is being set up.
func (s *Sampler) setRate(category Category, rate float64) {
	s.cfg.CategoryRates[category] = rate
}

// RateFor returns the configured rate for a category.
func (s *Sampler) RateFor(category Category) float64 {
	if slices.Contains(s.cfg.Bypass, category) {
		return 1
	}
	if r, ok := s.cfg.CategoryRates[category]; ok {
		return clampRate(r)
	}
	switch category {
	case CategoryError, CategoryHTTPError, CategoryResourceError:
		return clampRate(s.cfg.ErrorSampleRate)
	case CategoryPerformance, CategoryResourceTiming, CategoryMetric:
		return clampRate(s.cfg.PerformanceSampleRate)
	case CategoryWebVital:
		return clampRate(s.cfg.WebVitalSampleRate)
	}
	return 1
}

// Decide draws x in [0,1) and admits the event iff x < rate. Fatal
// observations are always admitted.
func (s *Sampler) Decide(raw RawEvent, fingerprint string) Decision {
	rate := s.RateFor(raw.Category)
	if raw.Fatal {
		rate = 1
	}
	switch rate {
	case 1:
		return Decision{Sampled: true, Rate: 1}
	case 0:
		return Decision{Sampled: false, Rate: 0}
	}

	var x float64
	if s.cfg.Deterministic {
		key := raw.ID
		if key == "" {
			key = fingerprint
		}
		x = hashUnit(key)
	} else {
		x = s.draw()
	}
	return Decision{Sampled: x < rate, Rate: rate}
}

// hashUnit maps key uniformly onto [0,1).
func hashUnit(key string) float64 {
	// Top 53 bits keep the result exactly representable.
	return float64(xxhash.Sum64String(key)>>11) / (1 << 53)
}

func clampRate(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
