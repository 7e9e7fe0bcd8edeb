package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Get(ctx context.Context, id snowflake.ID) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	IsLocked(ctx context.Context, id snowflake.ID) (bool, error)
	MatchingSlugs(candidates []string) []string
}

// InvoiceRefresher re-saves every invoice linked to a feature so owning
// organizations pick up changed terms.
type InvoiceRefresher interface {
	RefreshByFeature(ctx context.Context, featureID snowflake.ID) error
}

type ListRequest struct {
	Kind      *Kind
	Recurring *bool
}

type CreateRequest struct {
	Name        string `json:"name"`
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amount_cents"`
	Kind        Kind   `json:"kind"`
	// FeatureSlugs is comma-delimited; unknown slugs are dropped.
	FeatureSlugs string  `json:"feature_slugs"`
	Details      *string `json:"details"`
}

type UpdateRequest struct {
	ID           snowflake.ID `json:"id"`
	Name         *string      `json:"name,omitempty"`
	Currency     *string      `json:"currency,omitempty"`
	AmountCents  *int64       `json:"amount_cents,omitempty"`
	Kind         *Kind        `json:"kind,omitempty"`
	FeatureSlugs *string      `json:"feature_slugs,omitempty"`
	Details      *string      `json:"details,omitempty"`
}

type Response struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Currency     string    `json:"currency"`
	AmountCents  int64     `json:"amount_cents"`
	Kind         Kind      `json:"kind"`
	Recurring    bool      `json:"recurring"`
	FeatureSlugs []string  `json:"feature_slugs"`
	Details      *string   `json:"details,omitempty"`
	Locked       bool      `json:"locked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var (
	ErrDuplicateName   = errors.New("duplicate_name")
	ErrFeatureLocked   = errors.New("feature_locked")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrNotFound        = errors.New("not_found")
)
