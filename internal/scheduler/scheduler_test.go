package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlements/internal/clock"
	featurerepo "github.com/smallbiznis/entitlements/internal/feature/repository"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/entitlements/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/entitlements/internal/invoice/service"
	"github.com/smallbiznis/entitlements/internal/ledgertest"
	"github.com/smallbiznis/entitlements/internal/notify/notifytest"
	paymentrepo "github.com/smallbiznis/entitlements/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var scanNow = time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)

type scanFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	invoices *invoiceservice.Service
	accel    *ledgertest.TimeAccelerator
	orgID    snowflake.ID
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	clk := clock.NewFakeClock(scanNow)
	invoices := invoiceservice.New(invoiceservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Repo:     invoicerepo.Provide(),
		Features: featurerepo.Provide(),
		Payments: paymentrepo.Provide(),
		Notifier: &notifytest.Recorder{},
	})
	return &scanFixture{
		db:       db,
		node:     node,
		clock:    clk,
		invoices: invoices,
		accel:    ledgertest.NewTimeAccelerator(db),
		orgID:    node.Generate(),
	}
}

func (f *scanFixture) scheduler(t *testing.T, cfg Config, client *redis.Client, invoices invoicedomain.Service) *Scheduler {
	t.Helper()
	if invoices == nil {
		invoices = f.invoices
	}
	s, err := New(Params{
		Log:      zap.NewNop(),
		Invoices: invoices,
		GenID:    f.node,
		Clock:    f.clock,
		Config:   cfg,
		Redis:    client,
	})
	require.NoError(t, err)
	return s
}

func (f *scanFixture) invoice(t *testing.T, due int64, forced bool) snowflake.ID {
	t.Helper()
	start := scanNow.AddDate(-1, 0, 0)
	view, err := f.invoices.Create(context.Background(), invoicedomain.CreateRequest{
		OrganizationID:      f.orgID,
		Currency:            "USD",
		AmountDueCents:      &due,
		SubscriptionStartAt: &start,
		ForceActive:         forced,
	})
	require.NoError(t, err)
	id, err := snowflake.ParseString(view.ID)
	require.NoError(t, err)
	return id
}

func (f *scanFixture) renewals(t *testing.T, headID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Where("first_invoice_id = ?", headID).Count(&count).Error)
	return count
}

func TestRunRenewalScan_RenewsAndDeactivates(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	paid := f.invoice(t, 0, false)
	forced := f.invoice(t, 5000, true)
	unpaid := f.invoice(t, 5000, false)
	for _, id := range []snowflake.ID{paid, forced, unpaid} {
		require.NoError(t, f.accel.ExpireInvoice(ctx, id, scanNow))
	}

	info, err := f.accel.GetInvoiceInfo(ctx, paid, scanNow)
	require.NoError(t, err)
	assert.True(t, info.ShouldExpire)

	s := f.scheduler(t, Config{BatchSize: 1, Concurrency: 2}, nil, nil)
	require.NoError(t, s.RunRenewalScan(ctx, scanNow))

	for _, id := range []snowflake.ID{paid, forced} {
		info, err := f.accel.GetInvoiceInfo(ctx, id, scanNow)
		require.NoError(t, err)
		assert.False(t, info.IsActive)
		assert.False(t, info.ShouldExpire)
		assert.Equal(t, int64(1), f.renewals(t, id))
	}
	assert.Zero(t, f.renewals(t, unpaid))

	renewal, err := f.invoices.FollowingInvoice(ctx, paid)
	require.NoError(t, err)
	require.NotNil(t, renewal)
	require.NotNil(t, renewal.SubscriptionStartAt)
	assert.True(t, renewal.SubscriptionStartAt.Equal(scanNow.Add(-time.Minute)))
}

func TestRunRenewalScan_RerunIsSafe(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	paid := f.invoice(t, 0, false)
	require.NoError(t, f.accel.ExpireInvoice(ctx, paid, scanNow))

	s := f.scheduler(t, Config{}, nil, nil)
	require.NoError(t, s.RunRenewalScan(ctx, scanNow))
	require.NoError(t, s.RunRenewalScan(ctx, scanNow))

	assert.Equal(t, int64(1), f.renewals(t, paid))

	var total int64
	require.NoError(t, f.db.Model(&invoicedomain.Invoice{}).Count(&total).Error)
	assert.Equal(t, int64(2), total)
}

func TestRunRenewalScan_SkipsCurrentInvoices(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	paid := f.invoice(t, 0, false)

	s := f.scheduler(t, Config{}, nil, nil)
	require.NoError(t, s.RunRenewalScan(ctx, scanNow))

	info, err := f.accel.GetInvoiceInfo(ctx, paid, scanNow)
	require.NoError(t, err)
	assert.True(t, info.IsActive)
	assert.Zero(t, f.renewals(t, paid))
}

type flakyInvoices struct {
	invoicedomain.Service
	failID snowflake.ID
}

func (f *flakyInvoices) CreateFollowingInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.View, error) {
	if id == f.failID {
		return nil, errors.New("row lock timeout")
	}
	return f.Service.CreateFollowingInvoice(ctx, id)
}

func TestRunRenewalScan_JoinsFailuresAndContinues(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()

	first := f.invoice(t, 0, false)
	second := f.invoice(t, 0, false)
	for _, id := range []snowflake.ID{first, second} {
		require.NoError(t, f.accel.ExpireInvoice(ctx, id, scanNow))
	}

	flaky := &flakyInvoices{Service: f.invoices, failID: first}
	s := f.scheduler(t, Config{Concurrency: 1}, nil, flaky)

	err := s.RunRenewalScan(ctx, scanNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row lock timeout")
	assert.Contains(t, err.Error(), first.String())

	assert.Zero(t, f.renewals(t, first))
	assert.Equal(t, int64(1), f.renewals(t, second))

	info, err := f.accel.GetInvoiceInfo(ctx, first, scanNow)
	require.NoError(t, err)
	assert.True(t, info.ShouldExpire)

	// The next run picks the failed invoice up again.
	s = f.scheduler(t, Config{}, nil, nil)
	require.NoError(t, s.RunRenewalScan(ctx, scanNow))
	assert.Equal(t, int64(1), f.renewals(t, first))
}

func TestRunOnce_HonorsClusterLock(t *testing.T) {
	f := newScanFixture(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	paid := f.invoice(t, 0, false)
	require.NoError(t, f.accel.ExpireInvoice(ctx, paid, scanNow))

	s := f.scheduler(t, Config{}, client, nil)

	require.NoError(t, mr.Set(renewalLockKey, "other-instance"))
	assert.ErrorIs(t, s.RunOnce(ctx), ErrScanInProgress)
	assert.Zero(t, f.renewals(t, paid))

	mr.Del(renewalLockKey)
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, int64(1), f.renewals(t, paid))
	assert.False(t, mr.Exists(renewalLockKey))
}

func TestLocker_ReleaseRequiresToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewLocker(client)
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "job", "not-the-token"))
	assert.True(t, mr.Exists("job"))

	require.NoError(t, locker.Release(ctx, "job", token))
	assert.False(t, mr.Exists("job"))

	assert.Nil(t, NewLocker(nil))
}

func TestNew_ValidatesConfig(t *testing.T) {
	f := newScanFixture(t)

	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Params{
		Log:      zap.NewNop(),
		Invoices: f.invoices,
		GenID:    f.node,
		Clock:    f.clock,
		Config:   Config{Schedule: "not a schedule"},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	s := f.scheduler(t, Config{}, nil, nil)
	assert.Equal(t, DefaultConfig().Schedule, s.cfg.Schedule)
	assert.Equal(t, DefaultConfig().BatchSize, s.cfg.BatchSize)
	assert.Nil(t, s.locker)
}

func TestStartStop(t *testing.T) {
	f := newScanFixture(t)
	s := f.scheduler(t, Config{Schedule: "0 3 * * *"}, nil, nil)

	require.NoError(t, s.Start())
	require.Len(t, s.cron.Entries(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
