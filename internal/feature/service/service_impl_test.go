package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/clock"
	"github.com/smallbiznis/entitlements/internal/feature/domain"
	"github.com/smallbiznis/entitlements/internal/feature/repository"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testAllowList = domain.StaticAllowList{"csv_exports", "messages", "bike_codes", "reg_phone"}

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshByFeature(ctx context.Context, featureID snowflake.ID) error {
	args := m.Called(ctx, featureID)
	return args.Error(0)
}

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  domain.Service
}

func newFixture(t *testing.T, refresher domain.InvoiceRefresher) *fixture {
	t.Helper()
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clock.NewFakeClock(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)),
		Repo:      repository.Provide(),
		AllowList: testAllowList,
		Refresher: refresher,
	})
	return &fixture{db: db, node: node, svc: svc}
}

// linkInvoice attaches the feature to a new invoice with the given active flag.
func (f *fixture) linkInvoice(t *testing.T, featureID string, active bool) {
	t.Helper()
	id, err := snowflake.ParseString(featureID)
	require.NoError(t, err)

	now := time.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:                f.node.Generate(),
		OrganizationID:    f.node.Generate(),
		Kind:              invoicedomain.KindOrganization,
		Currency:          "USD",
		IsActive:          active,
		ChildFeatureSlugs: datatypes.JSONSlice[string]{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.db.Create(&invoice).Error)
	require.NoError(t, f.db.Create(&invoicedomain.InvoiceFeature{
		ID:        f.node.Generate(),
		InvoiceID: invoice.ID,
		FeatureID: id,
		CreatedAt: now,
	}).Error)
}

func TestRegister_FiltersSlugsToAllowList(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.svc.Register(context.Background(), domain.CreateRequest{
		Name:         "Messaging",
		Currency:     "usd",
		AmountCents:  5000,
		Kind:         domain.KindStandard,
		FeatureSlugs: " Messages, not_a_slug, csv_exports, messages",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"messages", "csv_exports"}, resp.FeatureSlugs)
	assert.Equal(t, "USD", resp.Currency)
	assert.True(t, resp.Recurring)
	assert.False(t, resp.Locked)
}

func TestRegister_DuplicateName(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, domain.CreateRequest{Name: "Stickers", Currency: "USD", AmountCents: 100})
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, domain.CreateRequest{Name: "Stickers", Currency: "USD", AmountCents: 200})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)
}

func TestRegister_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, domain.CreateRequest{Name: " ", Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Register(ctx, domain.CreateRequest{Name: "A", Currency: "ZZZZ"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	_, err = f.svc.Register(ctx, domain.CreateRequest{Name: "A", Currency: "USD", Kind: "weekly"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = f.svc.Register(ctx, domain.CreateRequest{Name: "A", Currency: "USD", AmountCents: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestUpdate_LockedFeatureRejectsPriceAndSlugChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Register(ctx, domain.CreateRequest{
		Name: "Bike codes", Currency: "USD", AmountCents: 10000, FeatureSlugs: "bike_codes",
	})
	require.NoError(t, err)
	f.linkInvoice(t, created.ID, true)

	id, _ := snowflake.ParseString(created.ID)
	locked, err := f.svc.IsLocked(ctx, id)
	require.NoError(t, err)
	assert.True(t, locked)

	price := int64(12000)
	_, err = f.svc.Update(ctx, domain.UpdateRequest{ID: id, AmountCents: &price})
	assert.ErrorIs(t, err, domain.ErrFeatureLocked)

	slugs := "bike_codes, reg_phone"
	name := "Renamed"
	_, err = f.svc.Update(ctx, domain.UpdateRequest{ID: id, FeatureSlugs: &slugs, Name: &name})
	assert.ErrorIs(t, err, domain.ErrFeatureLocked)

	got, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), got.AmountCents)
	assert.Equal(t, []string{"bike_codes"}, got.FeatureSlugs)
	assert.Equal(t, "Bike codes", got.Name)
	assert.True(t, got.Locked)
}

func TestUpdate_LockedFeatureAcceptsUnchangedTerms(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Register(ctx, domain.CreateRequest{
		Name: "Bike codes", Currency: "USD", AmountCents: 10000, FeatureSlugs: "bike_codes",
	})
	require.NoError(t, err)
	f.linkInvoice(t, created.ID, true)

	id, _ := snowflake.ParseString(created.ID)
	price := int64(10000)
	details := "Printed stickers"
	resp, err := f.svc.Update(ctx, domain.UpdateRequest{ID: id, AmountCents: &price, Details: &details})
	require.NoError(t, err)
	require.NotNil(t, resp.Details)
	assert.Equal(t, "Printed stickers", *resp.Details)
}

func TestUpdate_UnlockedFeatureAcceptsChanges(t *testing.T) {
	refresher := &mockRefresher{}
	f := newFixture(t, refresher)
	ctx := context.Background()

	created, err := f.svc.Register(ctx, domain.CreateRequest{
		Name: "Bike codes", Currency: "USD", AmountCents: 10000, FeatureSlugs: "bike_codes",
	})
	require.NoError(t, err)
	// Linked only to an inactive invoice.
	f.linkInvoice(t, created.ID, false)

	id, _ := snowflake.ParseString(created.ID)
	refresher.On("RefreshByFeature", mock.Anything, id).Return(nil).Once()

	price := int64(12000)
	slugs := "bike_codes, reg_phone"
	resp, err := f.svc.Update(ctx, domain.UpdateRequest{ID: id, AmountCents: &price, FeatureSlugs: &slugs})
	require.NoError(t, err)
	assert.Equal(t, int64(12000), resp.AmountCents)
	assert.Equal(t, []string{"bike_codes", "reg_phone"}, resp.FeatureSlugs)
	refresher.AssertExpectations(t)
}

func TestIsLocked_RequiresSlugs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	created, err := f.svc.Register(ctx, domain.CreateRequest{Name: "Support", Currency: "USD", AmountCents: 500})
	require.NoError(t, err)
	f.linkInvoice(t, created.ID, true)

	id, _ := snowflake.ParseString(created.ID)
	locked, err := f.svc.IsLocked(ctx, id)
	require.NoError(t, err)
	assert.False(t, locked)

	price := int64(900)
	_, err = f.svc.Update(ctx, domain.UpdateRequest{ID: id, AmountCents: &price})
	assert.NoError(t, err)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	name := "x"
	_, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: 12345, Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_FiltersByRecurrence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, domain.CreateRequest{Name: "Annual", Currency: "USD", Kind: domain.KindStandard})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, domain.CreateRequest{Name: "Setup", Currency: "USD", Kind: domain.KindStandardOneTime})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, domain.CreateRequest{Name: "Custom import", Currency: "USD", Kind: domain.KindCustomOneTime})
	require.NoError(t, err)

	recurring := true
	items, err := f.svc.List(ctx, domain.ListRequest{Recurring: &recurring})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Annual", items[0].Name)

	oneTime := false
	items, err = f.svc.List(ctx, domain.ListRequest{Recurring: &oneTime})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	kind := domain.KindCustomOneTime
	items, err = f.svc.List(ctx, domain.ListRequest{Kind: &kind})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Custom import", items[0].Name)
}

func TestMatchingSlugs(t *testing.T) {
	f := newFixture(t, nil)

	got := f.svc.MatchingSlugs(domain.ParseSlugCandidates("reg_phone nope csv_exports"))
	assert.Equal(t, []string{"csv_exports", "reg_phone"}, got)

	assert.Nil(t, f.svc.MatchingSlugs([]string{"nope"}))
}
