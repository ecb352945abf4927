// tier.go maps categories to delivery tiers and tiers to flush policies.

package beacon

import (
	"fmt"
	"time"
)

// Tier is a delivery priority class.
type Tier string

const (
	TierCritical  Tier = "critical"
	TierNormal    Tier = "normal"
	TierAuxiliary Tier = "auxiliary"
)

// Tiers lists every tier in flush priority order.
var Tiers = []Tier{TierCritical, TierNormal, TierAuxiliary}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierNormal, TierAuxiliary:
		return true
	}
	return false
}

var defaultTiers = map[Category]Tier{
	CategoryError:           TierCritical,
	CategoryCrash:           TierCritical,
	CategoryHTTPError:       TierNormal,
	CategoryResourceError:   TierNormal,
	CategoryWebVital:        TierNormal,
	CategorySession:         TierNormal,
	CategoryReplay:          TierNormal,
	CategoryCustom:          TierNormal,
	CategoryPerformance:     TierAuxiliary,
	CategoryResourceTiming:  TierAuxiliary,
	CategoryMetric:          TierAuxiliary,
	CategoryDedupCorrection: TierAuxiliary,
	CategoryBreadcrumb:      TierAuxiliary,
}

// Classifier assigns tiers. It is immutable after construction, so
// classifying the same category always yields the same tier.
type Classifier struct {
	tiers map[Category]Tier
}

// NewClassifier builds a classifier from the defaults plus overrides.
func NewClassifier(overrides map[Category]Tier) (*Classifier, error) {
	tiers := make(map[Category]Tier, len(defaultTiers)+len(overrides))
	for c, t := range defaultTiers {
		tiers[c] = t
	}
	for c, t := range overrides {
		if !t.Valid() {
			return nil, fmt.Errorf("category %q: unknown tier %q", c, t)
		}
		tiers[c] = t
	}
	return &Classifier{tiers: tiers}, nil
}

// Classify returns the tier for category. Unknown categories are normal.
func (c *Classifier) Classify(category Category) Tier {
	if t, ok := c.tiers[category]; ok {
		return t
	}
	return TierNormal
}

// LayerPolicy is a tier's batching policy. A queue flushes when it holds
// BatchSize events or FlushInterval has passed since its last flush. A
// BatchSize of one or less sends every event on its own; a zero
// FlushInterval disables the timer.
type LayerPolicy struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// immediate reports whether the policy bypasses batching.
func (p LayerPolicy) immediate() bool {
	return p.BatchSize <= 1
}

// policies resolves the per-tier policy from the transport settings.
// With no layered settings every tier uses the flat transport policy.
func policies(t TransportConfig, layered *LayeredTransportConfig) map[Tier]LayerPolicy {
	flat := LayerPolicy{BatchSize: t.BatchSize, FlushInterval: t.FlushInterval}
	if layered == nil {
		return map[Tier]LayerPolicy{
			TierCritical:  flat,
			TierNormal:    flat,
			TierAuxiliary: flat,
		}
	}

	out := map[Tier]LayerPolicy{
		TierCritical:  {BatchSize: 1, FlushInterval: 0},
		TierNormal:    flat,
		TierAuxiliary: {BatchSize: 2 * t.BatchSize, FlushInterval: 2 * t.FlushInterval},
	}
	for tier, override := range map[Tier]*LayerPolicy{
		TierCritical:  layered.Critical,
		TierNormal:    layered.Normal,
		TierAuxiliary: layered.Auxiliary,
	} {
		if override != nil {
			out[tier] = *override
		}
	}
	return out
}
