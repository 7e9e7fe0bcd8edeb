package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	featureA snowflake.ID = 1
	featureB snowflake.ID = 2
	featureC snowflake.ID = 3
)

func apply(existing []snowflake.ID, deltas []FeatureDelta) map[snowflake.ID]int {
	counts := CountFeatures(existing)
	for _, d := range deltas {
		counts[d.FeatureID] += d.Add - d.Remove
		if counts[d.FeatureID] == 0 {
			delete(counts, d.FeatureID)
		}
	}
	return counts
}

func TestReconcileQuantities_MultisetRegression(t *testing.T) {
	existing := []snowflake.ID{featureA, featureC, featureC}
	requested := map[snowflake.ID]int{featureA: 3, featureB: 1}

	deltas, err := ReconcileQuantities(existing, requested)
	require.NoError(t, err)

	assert.Equal(t, []FeatureDelta{
		{FeatureID: featureA, Add: 2},
		{FeatureID: featureB, Add: 1},
		{FeatureID: featureC, Remove: 2},
	}, deltas)
	assert.Equal(t, map[snowflake.ID]int{featureA: 3, featureB: 1}, apply(existing, deltas))
}

func TestReconcileQuantities_Idempotent(t *testing.T) {
	existing := []snowflake.ID{featureA, featureA, featureB}
	requested := map[snowflake.ID]int{featureA: 2, featureB: 1}

	deltas, err := ReconcileQuantities(existing, requested)
	require.NoError(t, err)
	assert.Empty(t, deltas)
}

func TestReconcileQuantities_ReducesAndClears(t *testing.T) {
	existing := []snowflake.ID{featureA, featureA, featureA, featureB}

	deltas, err := ReconcileQuantities(existing, map[snowflake.ID]int{featureA: 1, featureB: 0})
	require.NoError(t, err)
	assert.Equal(t, map[snowflake.ID]int{featureA: 1}, apply(existing, deltas))

	deltas, err = ReconcileQuantities(existing, nil)
	require.NoError(t, err)
	assert.Empty(t, apply(existing, deltas))
}

func TestReconcileQuantities_RejectsNegativeCounts(t *testing.T) {
	_, err := ReconcileQuantities(nil, map[snowflake.ID]int{featureA: -1})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestCountFeatures(t *testing.T) {
	assert.Equal(t, map[snowflake.ID]int{featureA: 2, featureB: 1}, CountFeatures([]snowflake.ID{featureA, featureB, featureA}))
}
