package render

import (
	"testing"
	"time"

	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupLines(t *testing.T) {
	catalog := map[string]Line{
		"1": {Name: "Seats", Kind: "standard", UnitCents: 1000},
		"2": {Name: "Exports", Kind: "custom", UnitCents: 250},
	}

	lines := GroupLines([]string{"1", "2", "1", "9"}, catalog)

	require.Len(t, lines, 2)
	assert.Equal(t, Line{FeatureID: "2", Name: "Exports", Kind: "custom", Quantity: 1, UnitCents: 250, TotalCents: 250}, lines[0])
	assert.Equal(t, Line{FeatureID: "1", Name: "Seats", Kind: "standard", Quantity: 2, UnitCents: 1000, TotalCents: 2000}, lines[1])
}

func TestTextRenderer_RenderString(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	view := invoicedomain.View{
		ID:                      "42",
		DisplayName:             "Invoice #42",
		OrganizationID:          "7",
		Kind:                    invoicedomain.KindOrganization,
		Currency:                "USD",
		HeadID:                  "40",
		Renewal:                 true,
		SubscriptionStartAt:     &start,
		SubscriptionEndAt:       &end,
		AmountDueFormatted:      "$15.00",
		AmountPaidFormatted:     "$15.00",
		DiscountFormatted:       "-$5.00",
		FeatureCostCents:        2000,
		FeatureSlugs:            []string{"messages", "csv_exports"},
		ChildFeatureSlugsString: "messages",
		ChildFeatureSlugs:       []string{"messages"},
		Active:                  true,
		Status:                  invoicedomain.StatusCurrent,
	}

	out, err := NewTextRenderer().RenderString(StatementInput{
		Invoice: view,
		Lines:   []Line{{FeatureID: "1", Name: "Seats", Kind: "standard", Quantity: 2, UnitCents: 1000, TotalCents: 2000}},
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Invoice #42  [current]")
	assert.Contains(t, out, "2026-01-01 - 2027-01-01")
	assert.Contains(t, out, "Renews:         Invoice #40")
	assert.Contains(t, out, "x2")
	assert.Contains(t, out, "Discount:       -$5.00")
	assert.Contains(t, out, "Entitlements:   messages, csv_exports")
	assert.Contains(t, out, "Active:         yes")
}

func TestTextRenderer_EmptyInvoice(t *testing.T) {
	out, err := NewTextRenderer().RenderString(StatementInput{
		Invoice: invoicedomain.View{DisplayName: "Invoice #1", Status: invoicedomain.StatusPending},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "(none)")
	assert.Contains(t, out, "Amount due:     -")
	assert.Contains(t, out, "Period:         - - -")
	assert.NotContains(t, out, "Entitlements")
}
