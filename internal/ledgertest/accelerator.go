package ledgertest

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites subscription periods so renewal paths can be
// exercised without waiting a year.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// ExpireInvoice moves subscription_end_at to just before now while leaving
// the stored is_active flag alone, the state the daily scan looks for.
func (ta *TimeAccelerator) ExpireInvoice(ctx context.Context, invoiceID snowflake.ID, now time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET subscription_end_at = ?, updated_at = ?
		 WHERE id = ?`,
		now.Add(-1*time.Minute),
		now,
		invoiceID,
	).Error
}

// SetPeriod sets an explicit subscription period.
func (ta *TimeAccelerator) SetPeriod(ctx context.Context, invoiceID snowflake.ID, start, end time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET subscription_start_at = ?, subscription_end_at = ?
		 WHERE id = ?`,
		start.UTC(),
		end.UTC(),
		invoiceID,
	).Error
}

// InvoiceInfo is a raw snapshot of an invoice row for assertions.
type InvoiceInfo struct {
	ID             snowflake.ID
	IsActive       bool
	AmountPaid     int64
	EndAt          *time.Time
	TimeUntilEnd   time.Duration
	ShouldExpire   bool
	FirstInvoiceID *snowflake.ID
}

func (ta *TimeAccelerator) GetInvoiceInfo(ctx context.Context, invoiceID snowflake.ID, now time.Time) (*InvoiceInfo, error) {
	var invoice invoicedomain.Invoice
	if err := ta.db.WithContext(ctx).Where("id = ?", invoiceID).First(&invoice).Error; err != nil {
		return nil, err
	}

	info := &InvoiceInfo{
		ID:             invoice.ID,
		IsActive:       invoice.IsActive,
		AmountPaid:     invoice.AmountPaidCents,
		EndAt:          invoice.SubscriptionEndAt,
		ShouldExpire:   invoice.ShouldExpire(now),
		FirstInvoiceID: invoice.FirstInvoiceID,
	}
	if invoice.SubscriptionEndAt != nil {
		info.TimeUntilEnd = invoice.SubscriptionEndAt.Sub(now)
	}
	return info, nil
}
