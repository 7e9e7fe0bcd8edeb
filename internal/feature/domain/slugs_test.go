package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterSlugs(t *testing.T) {
	allowed := []string{"csv_exports", "messages", "bike_codes"}

	assert.Equal(t, []string{"messages", "csv_exports"}, FilterSlugs(allowed, "MESSAGES , unknown,csv_exports,messages"))
	assert.Empty(t, FilterSlugs(allowed, ""))
	assert.Empty(t, FilterSlugs(allowed, " , ,"))
}

func TestFilterSlugs_DropsNearMisses(t *testing.T) {
	allowed := []string{"csv_exports", "messages", "bike_codes"}

	for _, raw := range []string{"messages!", "méssages", "<messages>", "bike_codes?", "bike-codes", "_messages"} {
		assert.Empty(t, FilterSlugs(allowed, raw), raw)
	}
	assert.Equal(t, []string{"bike_codes"}, FilterSlugs(allowed, "messages!, Bike_Codes "))
}

func TestNormalizeSlug(t *testing.T) {
	assert.Equal(t, "csv_exports", NormalizeSlug("  CSV_Exports "))
	assert.Equal(t, "", NormalizeSlug("csv exports"))
	assert.Equal(t, "", NormalizeSlug(""))
}

func TestMatchingSlugs_KeepsAllowListOrder(t *testing.T) {
	allowed := []string{"csv_exports", "messages", "bike_codes"}

	assert.Equal(t, []string{"csv_exports", "bike_codes"}, MatchingSlugs(allowed, []string{"bike_codes", "csv_exports", "other"}))
	assert.Nil(t, MatchingSlugs(allowed, nil))
	assert.Nil(t, MatchingSlugs(allowed, ParseSlugCandidates("  other  ")))
}

func TestKindRecurrence(t *testing.T) {
	assert.True(t, KindStandard.Recurring())
	assert.True(t, KindCustom.Recurring())
	assert.True(t, KindStandardOneTime.OneTime())
	assert.True(t, KindCustomOneTime.OneTime())
	assert.False(t, Kind("weekly").Valid())
	assert.Len(t, Kinds(), 4)
}

func TestJoinSlugs(t *testing.T) {
	assert.Equal(t, "a, b", JoinSlugs([]string{"a", "b"}))
	assert.Equal(t, "", JoinSlugs(nil))
}
