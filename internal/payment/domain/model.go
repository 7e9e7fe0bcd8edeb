package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Payment is an amount already captured against one invoice. Rows are
// append-only.
type Payment struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID      snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	OrganizationID snowflake.ID `json:"organization_id" gorm:"not null;default:0;index"`
	AmountCents    int64        `json:"amount_cents" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	Reference      *string      `json:"reference,omitempty" gorm:"type:text"`
	PaidAt         time.Time    `json:"paid_at" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	SumByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
}

type Service interface {
	RecordPayment(ctx context.Context, req RecordRequest) (*Response, error)
	ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]Response, error)
}

type RecordRequest struct {
	InvoiceID   snowflake.ID `json:"invoice_id"`
	AmountCents int64        `json:"amount_cents"`
	// PaidAt defaults to now.
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	Reference *string    `json:"reference,omitempty"`
}

type Response struct {
	ID                string    `json:"id"`
	InvoiceID         string    `json:"invoice_id"`
	OrganizationID    string    `json:"organization_id"`
	AmountCents       int64     `json:"amount_cents"`
	Currency          string    `json:"currency"`
	Reference         *string   `json:"reference,omitempty"`
	PaidAt            time.Time `json:"paid_at"`
	InvoiceAmountPaid int64     `json:"invoice_amount_paid_cents"`
	InvoiceActive     bool      `json:"invoice_active"`
	CreatedAt         time.Time `json:"created_at"`
}

var (
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrInvalidInvoice = errors.New("invalid_invoice")
)
