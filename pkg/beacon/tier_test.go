package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCategories = []Category{
	CategoryError, CategoryCrash, CategoryHTTPError, CategoryResourceError,
	CategoryWebVital, CategoryPerformance, CategoryResourceTiming, CategoryMetric,
	CategorySession, CategoryBreadcrumb, CategoryReplay, CategoryCustom,
	CategoryDedupCorrection,
}

func TestClassifier_Defaults(t *testing.T) {
	c, err := NewClassifier(nil)
	require.NoError(t, err)

	assert.Equal(t, TierCritical, c.Classify(CategoryError))
	assert.Equal(t, TierCritical, c.Classify(CategoryCrash))
	assert.Equal(t, TierNormal, c.Classify(CategoryHTTPError))
	assert.Equal(t, TierNormal, c.Classify(CategoryReplay))
	assert.Equal(t, TierAuxiliary, c.Classify(CategoryPerformance))
	assert.Equal(t, TierAuxiliary, c.Classify(CategoryDedupCorrection))
	assert.Equal(t, TierNormal, c.Classify("something_new"))
}

func TestClassifier_Idempotent(t *testing.T) {
	c, err := NewClassifier(map[Category]Tier{CategoryWebVital: TierCritical})
	require.NoError(t, err)

	for _, cat := range allCategories {
		first := c.Classify(cat)
		assert.True(t, first.Valid())
		for range 5 {
			assert.Equal(t, first, c.Classify(cat), "category %s", cat)
		}
	}
	assert.Equal(t, TierCritical, c.Classify(CategoryWebVital))
}

func TestClassifier_RejectsUnknownTier(t *testing.T) {
	_, err := NewClassifier(map[Category]Tier{CategoryError: "urgent"})
	assert.Error(t, err)
}

func TestPolicies(t *testing.T) {
	flat := TransportConfig{BatchSize: 10, FlushInterval: 5 * time.Second}

	t.Run("non-layered uses flat policy everywhere", func(t *testing.T) {
		p := policies(flat, nil)
		for _, tier := range Tiers {
			assert.Equal(t, LayerPolicy{BatchSize: 10, FlushInterval: 5 * time.Second}, p[tier])
		}
	})

	t.Run("layered defaults", func(t *testing.T) {
		p := policies(flat, &LayeredTransportConfig{})
		assert.Equal(t, LayerPolicy{BatchSize: 1}, p[TierCritical])
		assert.True(t, p[TierCritical].immediate())
		assert.Equal(t, LayerPolicy{BatchSize: 10, FlushInterval: 5 * time.Second}, p[TierNormal])
		assert.Equal(t, LayerPolicy{BatchSize: 20, FlushInterval: 10 * time.Second}, p[TierAuxiliary])
	})

	t.Run("layered overrides", func(t *testing.T) {
		p := policies(flat, &LayeredTransportConfig{
			Normal: &LayerPolicy{BatchSize: 3, FlushInterval: time.Second},
		})
		assert.Equal(t, LayerPolicy{BatchSize: 3, FlushInterval: time.Second}, p[TierNormal])
		assert.Equal(t, LayerPolicy{BatchSize: 20, FlushInterval: 10 * time.Second}, p[TierAuxiliary])
	})
}
