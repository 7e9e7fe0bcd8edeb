package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if invoice == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	if invoice == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Save(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

// FindByIDForUpdate takes a row lock. SQLite ignores the locking clause and
// serializes writers instead.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).Scopes(scope(filter.Scope, now))
	if filter.OrganizationID != nil {
		stmt = stmt.Where("organization_id = ?", *filter.OrganizationID)
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var items []domain.Invoice
	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) PreviousInChain(ctx context.Context, db *gorm.DB, headID, beforeID snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).
		Where("first_invoice_id = ? AND id < ?", headID, beforeID).
		Order("id DESC"))
}

func (r *repo) FollowingInChain(ctx context.Context, db *gorm.DB, headID, afterID snowflake.ID) (*domain.Invoice, error) {
	return first(db.WithContext(ctx).
		Where("first_invoice_id = ? AND id > ?", headID, afterID).
		Order("id ASC"))
}

func (r *repo) ChainMembers(ctx context.Context, db *gorm.DB, headID, excludeID snowflake.ID) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).
		Where("first_invoice_id = ? AND id <> ?", headID, excludeID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FeatureIDs(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT feature_id FROM invoice_features WHERE invoice_id = ? ORDER BY id ASC`,
		invoiceID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FeatureIDsForInvoices(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]snowflake.ID, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT feature_id FROM invoice_features WHERE invoice_id IN ? ORDER BY invoice_id ASC, id ASC`,
		invoiceIDs,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) InsertFeatureLinks(ctx context.Context, db *gorm.DB, links []domain.InvoiceFeature) error {
	if len(links) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&links).Error
}

// DeleteFeatureLinks removes up to limit rows for the pair, or all of them
// when limit is not positive.
func (r *repo) DeleteFeatureLinks(ctx context.Context, db *gorm.DB, invoiceID, featureID snowflake.ID, limit int) error {
	if limit <= 0 {
		return db.WithContext(ctx).Exec(
			`DELETE FROM invoice_features WHERE invoice_id = ? AND feature_id = ?`,
			invoiceID,
			featureID,
		).Error
	}

	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM invoice_features
		 WHERE invoice_id = ? AND feature_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		invoiceID,
		featureID,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(`DELETE FROM invoice_features WHERE id IN ?`, ids).Error
}

func (r *repo) InvoiceIDsByFeature(ctx context.Context, db *gorm.DB, featureID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT invoice_id FROM invoice_features WHERE feature_id = ? ORDER BY invoice_id ASC`,
		featureID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func first(stmt *gorm.DB) (*domain.Invoice, error) {
	var item domain.Invoice
	err := stmt.Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func scope(s domain.Scope, now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch s {
		case domain.ScopeFirst:
			return db.Where("first_invoice_id IS NULL")
		case domain.ScopeRenewal:
			return db.Where("first_invoice_id IS NOT NULL")
		case domain.ScopeActive:
			return db.Where("is_active = ?", true)
		case domain.ScopeInactive:
			return db.Where("is_active = ?", false)
		case domain.ScopeCurrent:
			return db.Where("is_active = ? AND subscription_end_at > ?", true, now)
		case domain.ScopeExpired:
			return db.Where("subscription_start_at IS NOT NULL AND subscription_end_at < ?", now)
		case domain.ScopeShouldExpire:
			return db.Where("is_active = ? AND subscription_end_at < ?", true, now)
		default:
			return db
		}
	}
}
