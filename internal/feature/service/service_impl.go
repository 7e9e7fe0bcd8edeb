package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/clock"
	"github.com/smallbiznis/entitlements/internal/feature/domain"
	"github.com/smallbiznis/entitlements/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	AllowList domain.SlugAllowList
	Refresher domain.InvoiceRefresher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	clock     clock.Clock
	allowList domain.SlugAllowList
	refresher domain.InvoiceRefresher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("feature.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		clock:     p.Clock,
		allowList: p.AllowList,
		refresher: p.Refresher,
	}
}

func (s *Service) Register(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	currencyCode, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.AmountCents < 0 {
		return nil, domain.ErrInvalidAmount
	}
	kind := req.Kind
	if kind == "" {
		kind = domain.KindStandard
	}
	if !kind.Valid() {
		return nil, domain.ErrInvalidKind
	}

	existing, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateName
	}

	now := s.clock.Now()
	record := &domain.Feature{
		ID:           s.genID.Generate(),
		Name:         name,
		Currency:     currencyCode,
		AmountCents:  req.AmountCents,
		Kind:         kind,
		FeatureSlugs: datatypes.JSONSlice[string](s.filterSlugs(req.FeatureSlugs)),
		Details:      normalizeDetails(req.Details),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, s.db, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}

	s.log.Info("feature registered",
		zap.String("feature_id", record.ID.String()),
		zap.String("name", record.Name),
		zap.String("kind", string(record.Kind)),
	)

	resp := s.toResponse(record, false)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	if req.ID == 0 {
		return nil, domain.ErrNotFound
	}

	var (
		updated *domain.Feature
		locked  bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		locked, err = s.isLocked(ctx, tx, item)
		if err != nil {
			return err
		}

		termsChanged := false
		if req.AmountCents != nil {
			if *req.AmountCents < 0 {
				return domain.ErrInvalidAmount
			}
			termsChanged = termsChanged || *req.AmountCents != item.AmountCents
			item.AmountCents = *req.AmountCents
		}
		if req.FeatureSlugs != nil {
			slugs := s.filterSlugs(*req.FeatureSlugs)
			termsChanged = termsChanged || !slices.Equal(slugs, []string(item.FeatureSlugs))
			item.FeatureSlugs = datatypes.JSONSlice[string](slugs)
		}
		if locked && termsChanged {
			return domain.ErrFeatureLocked
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidName
			}
			if name != item.Name {
				other, err := s.repo.FindByName(ctx, tx, name)
				if err != nil {
					return err
				}
				if other != nil {
					return domain.ErrDuplicateName
				}
			}
			item.Name = name
		}
		if req.Currency != nil {
			currencyCode, err := normalizeCurrency(*req.Currency)
			if err != nil {
				return err
			}
			item.Currency = currencyCode
		}
		if req.Kind != nil {
			if !req.Kind.Valid() {
				return domain.ErrInvalidKind
			}
			item.Kind = *req.Kind
		}
		if req.Details != nil {
			item.Details = normalizeDetails(req.Details)
		}

		item.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateName
			}
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.refresher != nil {
		if err := s.refresher.RefreshByFeature(ctx, updated.ID); err != nil {
			s.log.Warn("failed to refresh invoices after feature update",
				zap.String("feature_id", updated.ID.String()),
				zap.Error(err),
			)
		}
	}

	resp := s.toResponse(updated, locked && len(updated.FeatureSlugs) > 0)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Response, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	locked, err := s.isLocked(ctx, s.db, item)
	if err != nil {
		return nil, err
	}
	resp := s.toResponse(item, locked)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	if req.Kind != nil && !req.Kind.Valid() {
		return nil, domain.ErrInvalidKind
	}

	items, err := s.repo.List(ctx, s.db, req)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		locked, err := s.isLocked(ctx, s.db, &items[i])
		if err != nil {
			return nil, err
		}
		resp = append(resp, s.toResponse(&items[i], locked))
	}
	return resp, nil
}

func (s *Service) IsLocked(ctx context.Context, id snowflake.ID) (bool, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, domain.ErrNotFound
	}
	return s.isLocked(ctx, s.db, item)
}

func (s *Service) MatchingSlugs(candidates []string) []string {
	return domain.MatchingSlugs(s.allowList.AllowedSlugs(), candidates)
}

func (s *Service) isLocked(ctx context.Context, tx *gorm.DB, item *domain.Feature) (bool, error) {
	if len(item.FeatureSlugs) == 0 {
		return false, nil
	}
	count, err := s.repo.CountActiveInvoiceLinks(ctx, tx, item.ID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) filterSlugs(raw string) []string {
	return domain.FilterSlugs(s.allowList.AllowedSlugs(), raw)
}

func (s *Service) toResponse(f *domain.Feature, locked bool) domain.Response {
	slugs := []string(f.FeatureSlugs)
	if slugs == nil {
		slugs = []string{}
	}
	return domain.Response{
		ID:           f.ID.String(),
		Name:         f.Name,
		Currency:     f.Currency,
		AmountCents:  f.AmountCents,
		Kind:         f.Kind,
		Recurring:    f.Recurring(),
		FeatureSlugs: slugs,
		Details:      f.Details,
		Locked:       locked,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func normalizeCurrency(value string) (string, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return "", domain.ErrInvalidCurrency
	}
	unit, err := currency.ParseISO(value)
	if err != nil {
		return "", errors.Join(domain.ErrInvalidCurrency, err)
	}
	return unit.String(), nil
}

func normalizeDetails(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
