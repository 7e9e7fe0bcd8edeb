// Package domain contains the entitlement ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Kind distinguishes invoices owned by an organization from standalone ones.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindStandalone   Kind = "standalone"
)

func (k Kind) Valid() bool {
	return k == KindOrganization || k == KindStandalone
}

// Status is the derived lifecycle state of an invoice. It is never stored.
type Status string

const (
	StatusPending             Status = "pending"
	StatusActive              Status = "active"
	StatusCurrent             Status = "current"
	StatusInactive            Status = "inactive"
	StatusExpired             Status = "expired"
	StatusExpiredButWasActive Status = "expired_but_was_active"
)

// Invoice is one billing period of an organization's subscription.
type Invoice struct {
	ID                  snowflake.ID                `gorm:"primaryKey"`
	OrganizationID      snowflake.ID                `gorm:"not null;default:0;index"`
	Kind                Kind                        `gorm:"type:text;not null;default:'organization'"`
	Currency            string                      `gorm:"type:text;not null"`
	FirstInvoiceID      *snowflake.ID               `gorm:"index"`
	SubscriptionStartAt *time.Time                  `gorm:""`
	SubscriptionEndAt   *time.Time                  `gorm:"index"`
	AmountDueCents      *int64                      `gorm:""`
	AmountPaidCents     int64                       `gorm:"not null;default:0"`
	ForceActive         bool                        `gorm:"not null;default:false"`
	IsActive            bool                        `gorm:"not null;default:false;index"`
	ChildFeatureSlugs   datatypes.JSONSlice[string] `gorm:"not null"`
	Notes               *string                     `gorm:"type:text"`
	CreatedAt           time.Time                   `gorm:"not null"`
	UpdatedAt           time.Time                   `gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceFeature links a feature to an invoice. The same pair may appear
// more than once; each row is one purchased unit.
type InvoiceFeature struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	InvoiceID snowflake.ID `gorm:"not null;index:ix_invoice_features_invoice_feature,priority:1"`
	FeatureID snowflake.ID `gorm:"not null;index:ix_invoice_features_invoice_feature,priority:2;index"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (InvoiceFeature) TableName() string { return "invoice_features" }

func (i *Invoice) IsRenewal() bool {
	return i.FirstInvoiceID != nil && *i.FirstInvoiceID != 0
}

// HeadID is the id shared by every invoice in the subscription chain.
func (i *Invoice) HeadID() snowflake.ID {
	if i.IsRenewal() {
		return *i.FirstInvoiceID
	}
	return i.ID
}

func (i *Invoice) Expired(now time.Time) bool {
	return i.SubscriptionEndAt != nil && i.SubscriptionEndAt.Before(now)
}

// PaidInFull is false while the amount due is unknown, even when nothing
// has been paid.
func (i *Invoice) PaidInFull() bool {
	return i.AmountDueCents != nil && i.AmountPaidCents >= *i.AmountDueCents
}

func (i *Invoice) WasActive(now time.Time) bool {
	return (i.Expired(now) && i.ForceActive) || (i.SubscriptionStartAt != nil && i.PaidInFull())
}

func (i *Invoice) Current(now time.Time) bool {
	return i.IsActive && i.SubscriptionEndAt != nil && i.SubscriptionEndAt.After(now)
}

// ShouldExpire reports a stored active flag that is stale for now.
func (i *Invoice) ShouldExpire(now time.Time) bool {
	return i.IsActive && i.Expired(now)
}

func (i *Invoice) Status(now time.Time) Status {
	switch {
	case i.Expired(now) && i.WasActive(now):
		return StatusExpiredButWasActive
	case i.Expired(now):
		return StatusExpired
	case i.IsActive && i.SubscriptionEndAt != nil:
		return StatusCurrent
	case i.IsActive:
		return StatusActive
	case i.SubscriptionStartAt == nil:
		return StatusPending
	default:
		return StatusInactive
	}
}

// Recompute re-derives the stored state from committed facts.
func (i *Invoice) Recompute(now time.Time, paidCents int64, term Term) {
	i.AmountPaidCents = paidCents
	if i.SubscriptionStartAt != nil && i.SubscriptionEndAt == nil {
		end := term.AddTo(*i.SubscriptionStartAt)
		i.SubscriptionEndAt = &end
	}
	i.IsActive = !i.Expired(now) && (i.ForceActive || i.PaidInFull())
	if i.ChildFeatureSlugs == nil {
		i.ChildFeatureSlugs = datatypes.JSONSlice[string]{}
	}
}

func (i *Invoice) Validate() error {
	if !i.Kind.Valid() {
		return ErrInvalidKind
	}
	if i.Kind == KindOrganization && i.OrganizationID == 0 {
		return ErrMissingOrganization
	}
	if i.Currency == "" {
		return ErrInvalidCurrency
	}
	return nil
}

// Discount is the catalog cost of the linked features minus the amount due.
// A negative value is an up-charge.
func (i *Invoice) Discount(featureCostCents int64) int64 {
	var due int64
	if i.AmountDueCents != nil {
		due = *i.AmountDueCents
	}
	return featureCostCents - due
}

func (i *Invoice) DisplayName() string {
	return "Invoice #" + i.ID.String()
}
