package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// FeatureDelta is the number of join rows to add or remove for one feature.
type FeatureDelta struct {
	FeatureID snowflake.ID
	Add       int
	Remove    int
}

// CountFeatures turns a list of feature ids with repeats into a count map.
func CountFeatures(ids []snowflake.ID) map[snowflake.ID]int {
	counts := make(map[snowflake.ID]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	return counts
}

// ReconcileQuantities diffs the existing join rows against the requested
// counts. Features missing from requested, or requested with zero, lose all
// their rows. Rows are fungible so only counts matter.
func ReconcileQuantities(existing []snowflake.ID, requested map[snowflake.ID]int) ([]FeatureDelta, error) {
	have := CountFeatures(existing)

	keys := make(map[snowflake.ID]struct{}, len(have)+len(requested))
	for id := range have {
		keys[id] = struct{}{}
	}
	for id, count := range requested {
		if count < 0 {
			return nil, ErrInvalidQuantity
		}
		keys[id] = struct{}{}
	}

	deltas := make([]FeatureDelta, 0, len(keys))
	for id := range keys {
		diff := requested[id] - have[id]
		switch {
		case diff > 0:
			deltas = append(deltas, FeatureDelta{FeatureID: id, Add: diff})
		case diff < 0:
			deltas = append(deltas, FeatureDelta{FeatureID: id, Remove: -diff})
		}
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].FeatureID < deltas[j].FeatureID })
	return deltas, nil
}
