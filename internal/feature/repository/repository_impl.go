package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/feature/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, feature *domain.Feature) error {
	if feature == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Create(feature).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Where("name = ?", name).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListRequest) ([]domain.Feature, error) {
	var items []domain.Feature
	stmt := db.WithContext(ctx).Model(&domain.Feature{})

	if filter.Kind != nil {
		stmt = stmt.Where("kind = ?", *filter.Kind)
	}
	if filter.Recurring != nil {
		oneTime := []domain.Kind{domain.KindStandardOneTime, domain.KindCustomOneTime}
		if *filter.Recurring {
			stmt = stmt.Where("kind NOT IN ?", oneTime)
		} else {
			stmt = stmt.Where("kind IN ?", oneTime)
		}
	}

	if err := stmt.Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Feature, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Feature
	err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, feature *domain.Feature) error {
	if feature == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).
		Model(&domain.Feature{}).
		Where("id = ?", feature.ID).
		Updates(map[string]any{
			"name":          feature.Name,
			"currency":      feature.Currency,
			"amount_cents":  feature.AmountCents,
			"kind":          feature.Kind,
			"feature_slugs": feature.FeatureSlugs,
			"details":       feature.Details,
			"updated_at":    feature.UpdatedAt,
		}).Error
}

func (r *repo) CountActiveInvoiceLinks(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*)
		 FROM invoice_features f
		 JOIN invoices i ON i.id = f.invoice_id
		 WHERE f.feature_id = ? AND i.is_active = ?`,
		id,
		true,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
