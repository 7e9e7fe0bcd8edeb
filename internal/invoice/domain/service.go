package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*View, error)
	Update(ctx context.Context, req UpdateRequest) (*View, error)
	Get(ctx context.Context, id snowflake.ID) (*View, error)
	List(ctx context.Context, req ListRequest) ([]View, error)
	// Save re-derives and persists an invoice without changing its inputs.
	Save(ctx context.Context, id snowflake.ID) (*View, error)

	SetFeatureQuantities(ctx context.Context, id snowflake.ID, quantities map[snowflake.ID]int) (*View, error)
	SetChildFeatureSlugs(ctx context.Context, id snowflake.ID, input SlugInput) (*View, error)
	OrganizationFeatureSlugs(ctx context.Context, organizationID snowflake.ID) ([]string, error)

	ChainHeadID(ctx context.Context, id snowflake.ID) (snowflake.ID, error)
	PreviousInvoice(ctx context.Context, id snowflake.ID) (*View, error)
	FollowingInvoice(ctx context.Context, id snowflake.ID) (*View, error)
	ChainMembers(ctx context.Context, id snowflake.ID) ([]View, error)
	// CreateFollowingInvoice returns nil when the invoice never became
	// active, and the existing renewal when one is already there.
	CreateFollowingInvoice(ctx context.Context, id snowflake.ID) (*View, error)
	ListShouldExpire(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
}

// MutateFunc changes an invoice inside the transaction holding its row lock.
type MutateFunc func(ctx context.Context, tx *gorm.DB, invoice *Invoice) error

// Mutator runs one locked read-modify-write cycle on an invoice, re-derives
// its state, persists it and signals the owning organization after commit.
type Mutator interface {
	Mutate(ctx context.Context, id snowflake.ID, operation string, fn MutateFunc) (*Invoice, error)
}

type CreateRequest struct {
	OrganizationID      snowflake.ID   `json:"organization_id"`
	Kind                Kind           `json:"kind"`
	Currency            string         `json:"currency"`
	AmountDueCents      *int64         `json:"amount_due_cents,omitempty"`
	SubscriptionStartAt *time.Time     `json:"subscription_start_at,omitempty"`
	SubscriptionEndAt   *time.Time     `json:"subscription_end_at,omitempty"`
	ForceActive         bool           `json:"force_active"`
	FeatureIDs          []snowflake.ID `json:"feature_ids,omitempty"`
	ChildFeatureSlugs   SlugInput      `json:"child_feature_slugs"`
	Notes               *string        `json:"notes,omitempty"`
}

type UpdateRequest struct {
	ID                  snowflake.ID         `json:"id"`
	AmountDueCents      *int64               `json:"amount_due_cents,omitempty"`
	ClearAmountDue      bool                 `json:"clear_amount_due,omitempty"`
	SubscriptionStartAt *time.Time           `json:"subscription_start_at,omitempty"`
	SubscriptionEndAt   *time.Time           `json:"subscription_end_at,omitempty"`
	ForceActive         *bool                `json:"force_active,omitempty"`
	Notes               *string              `json:"notes,omitempty"`
	FeatureQuantities   map[snowflake.ID]int `json:"feature_quantities,omitempty"`
	ChildFeatureSlugs   SlugInput            `json:"child_feature_slugs"`
}

type ListRequest struct {
	OrganizationID *snowflake.ID
	Scope          Scope
}

// SlugInput accepts either a list of slugs or a comma or whitespace
// delimited string. A blank input leaves stored slugs untouched.
type SlugInput struct {
	List []string `json:"list,omitempty"`
	Raw  string   `json:"raw,omitempty"`
}

func SlugList(values ...string) SlugInput { return SlugInput{List: values} }

func SlugString(raw string) SlugInput { return SlugInput{Raw: raw} }

func (in SlugInput) Values() []string {
	var parts []string
	if in.List != nil {
		parts = in.List
	} else {
		parts = strings.FieldsFunc(in.Raw, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
		})
	}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}

func (in SlugInput) Blank() bool {
	return len(in.Values()) == 0
}

// View is the read model of an invoice with its derived amounts.
type View struct {
	ID                      string     `json:"id"`
	DisplayName             string     `json:"display_name"`
	OrganizationID          string     `json:"organization_id"`
	Kind                    Kind       `json:"kind"`
	Currency                string     `json:"currency"`
	FirstInvoiceID          *string    `json:"first_invoice_id,omitempty"`
	HeadID                  string     `json:"head_id"`
	Renewal                 bool       `json:"renewal"`
	SubscriptionStartAt     *time.Time `json:"subscription_start_at,omitempty"`
	SubscriptionEndAt       *time.Time `json:"subscription_end_at,omitempty"`
	AmountDueCents          *int64     `json:"amount_due_cents,omitempty"`
	AmountDue               string     `json:"amount_due"`
	AmountDueFormatted      string     `json:"amount_due_formatted"`
	AmountPaidCents         int64      `json:"amount_paid_cents"`
	AmountPaidFormatted     string     `json:"amount_paid_formatted"`
	FeatureCostCents        int64      `json:"feature_cost_cents"`
	DiscountCents           int64      `json:"discount_cents"`
	DiscountFormatted       string     `json:"discount_formatted"`
	FeatureIDs              []string   `json:"feature_ids"`
	FeatureSlugs            []string   `json:"feature_slugs"`
	ChildFeatureSlugs       []string   `json:"child_feature_slugs"`
	ChildFeatureSlugsString string     `json:"child_feature_slugs_string"`
	ForceActive             bool       `json:"force_active"`
	Active                  bool       `json:"active"`
	PaidInFull              bool       `json:"paid_in_full"`
	Status                  Status     `json:"status"`
	Notes                   *string    `json:"notes,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

var invoiceIDRe = regexp.MustCompile(`\d+`)

// ParseInvoiceID reads an id out of operator input such as "Invoice #123".
func ParseInvoiceID(value string) (snowflake.ID, error) {
	digits := invoiceIDRe.FindString(value)
	if digits == "" {
		return 0, ErrInvalidID
	}
	id, err := snowflake.ParseString(digits)
	if err != nil || id == 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

var (
	ErrMissingOrganization = errors.New("missing_organization")
	ErrInvalidKind         = errors.New("invalid_kind")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidScope        = errors.New("invalid_scope")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("not_found")
)
