package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Scope narrows an invoice listing the same way the ledger reasons about
// invoices.
type Scope string

const (
	ScopeAll          Scope = ""
	ScopeFirst        Scope = "first"
	ScopeRenewal      Scope = "renewal"
	ScopeActive       Scope = "active"
	ScopeInactive     Scope = "inactive"
	ScopeCurrent      Scope = "current"
	ScopeExpired      Scope = "expired"
	ScopeShouldExpire Scope = "should_expire"
)

func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeFirst, ScopeRenewal, ScopeActive, ScopeInactive, ScopeCurrent, ScopeExpired, ScopeShouldExpire:
		return true
	default:
		return false
	}
}

type ListFilter struct {
	OrganizationID *snowflake.ID
	Scope          Scope
	Now            time.Time
	AfterID        snowflake.ID
	Limit          int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Save(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)

	// PreviousInChain returns the chain member with the highest id below
	// beforeID.
	PreviousInChain(ctx context.Context, db *gorm.DB, headID, beforeID snowflake.ID) (*Invoice, error)
	// FollowingInChain returns the chain member with the lowest id above
	// afterID.
	FollowingInChain(ctx context.Context, db *gorm.DB, headID, afterID snowflake.ID) (*Invoice, error)
	ChainMembers(ctx context.Context, db *gorm.DB, headID, excludeID snowflake.ID) ([]Invoice, error)

	FeatureIDs(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]snowflake.ID, error)
	FeatureIDsForInvoices(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]snowflake.ID, error)
	InsertFeatureLinks(ctx context.Context, db *gorm.DB, links []InvoiceFeature) error
	DeleteFeatureLinks(ctx context.Context, db *gorm.DB, invoiceID, featureID snowflake.ID, limit int) error
	InvoiceIDsByFeature(ctx context.Context, db *gorm.DB, featureID snowflake.ID) ([]snowflake.ID, error)
}

// PaymentTotals sums the payments recorded against an invoice.
type PaymentTotals interface {
	SumByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
}
