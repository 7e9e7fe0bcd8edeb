package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/clock"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/ledgertest"
	paymentdomain "github.com/smallbiznis/entitlements/internal/payment/domain"
	"github.com/smallbiznis/entitlements/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockMutator struct {
	mock.Mock
	db      *gorm.DB
	invoice *invoicedomain.Invoice
}

func (m *mockMutator) Mutate(ctx context.Context, id snowflake.ID, operation string, fn invoicedomain.MutateFunc) (*invoicedomain.Invoice, error) {
	args := m.Called(id, operation)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	err := m.db.Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx, m.invoice)
	})
	if err != nil {
		return nil, err
	}
	return m.invoice, nil
}

func newTestService(t *testing.T, mutator *mockMutator) (*Service, *gorm.DB) {
	t.Helper()
	db := ledgertest.OpenDB(t)
	mutator.db = db
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    ledgertest.Node(t),
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Invoices: mutator,
	})
	return svc.(*Service), db
}

func TestRecordPayment_RejectsNonPositiveAmountBeforeMutation(t *testing.T) {
	mutator := &mockMutator{}
	svc, _ := newTestService(t, mutator)

	_, err := svc.RecordPayment(context.Background(), paymentdomain.RecordRequest{InvoiceID: 1, AmountCents: 0})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.RecordPayment(context.Background(), paymentdomain.RecordRequest{InvoiceID: 1, AmountCents: -5})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	mutator.AssertNotCalled(t, "Mutate", mock.Anything, mock.Anything)
}

func TestRecordPayment_RequiresInvoice(t *testing.T) {
	mutator := &mockMutator{}
	svc, _ := newTestService(t, mutator)

	_, err := svc.RecordPayment(context.Background(), paymentdomain.RecordRequest{AmountCents: 100})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidInvoice)
}

func TestRecordPayment_InsertsInsideMutation(t *testing.T) {
	invoice := &invoicedomain.Invoice{ID: 42, OrganizationID: 7, Currency: "USD", AmountPaidCents: 2500, IsActive: true}
	mutator := &mockMutator{invoice: invoice}
	mutator.On("Mutate", snowflake.ID(42), "payment").Return(nil).Once()
	svc, db := newTestService(t, mutator)

	ref := "  wire-991 "
	resp, err := svc.RecordPayment(context.Background(), paymentdomain.RecordRequest{
		InvoiceID:   42,
		AmountCents: 2500,
		Reference:   &ref,
	})
	require.NoError(t, err)
	mutator.AssertExpectations(t)

	assert.Equal(t, "42", resp.InvoiceID)
	assert.Equal(t, "7", resp.OrganizationID)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, int64(2500), resp.InvoiceAmountPaid)
	assert.True(t, resp.InvoiceActive)
	require.NotNil(t, resp.Reference)
	assert.Equal(t, "wire-991", *resp.Reference)
	assert.True(t, resp.PaidAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	total, err := repository.Provide().SumByInvoice(context.Background(), db, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), total)

	listed, err := svc.ListByInvoice(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, resp.ID, listed[0].ID)
}

func TestRecordPayment_PropagatesMutationError(t *testing.T) {
	mutator := &mockMutator{}
	mutator.On("Mutate", snowflake.ID(9), "payment").Return(invoicedomain.ErrNotFound)
	svc, db := newTestService(t, mutator)

	_, err := svc.RecordPayment(context.Background(), paymentdomain.RecordRequest{InvoiceID: 9, AmountCents: 100})
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	var count int64
	require.NoError(t, db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}
