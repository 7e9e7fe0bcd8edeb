package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/clock"
	featuredomain "github.com/smallbiznis/entitlements/internal/feature/domain"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/notify"
	obslogger "github.com/smallbiznis/entitlements/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/entitlements/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       invoicedomain.Repository
	Features   featuredomain.Repository
	Payments   invoicedomain.PaymentTotals
	Notifier   notify.Notifier
	Terms      invoicedomain.TermSource `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       invoicedomain.Repository
	features   featuredomain.Repository
	payments   invoicedomain.PaymentTotals
	notifier   notify.Notifier
	terms      invoicedomain.TermSource
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		features:   p.Features,
		payments:   p.Payments,
		notifier:   p.Notifier,
		terms:      p.Terms,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateRequest) (*invoicedomain.View, error) {
	kind := req.Kind
	if kind == "" {
		kind = invoicedomain.KindOrganization
	}
	if !kind.Valid() {
		return nil, invoicedomain.ErrInvalidKind
	}
	currencyCode, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.AmountDueCents != nil && *req.AmountDueCents < 0 {
		return nil, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	invoice := &invoicedomain.Invoice{
		ID:                  s.genID.Generate(),
		OrganizationID:      req.OrganizationID,
		Kind:                kind,
		Currency:            currencyCode,
		SubscriptionStartAt: utcPtr(req.SubscriptionStartAt),
		SubscriptionEndAt:   utcPtr(req.SubscriptionEndAt),
		AmountDueCents:      copyInt64(req.AmountDueCents),
		ForceActive:         req.ForceActive,
		ChildFeatureSlugs:   datatypes.JSONSlice[string]{},
		Notes:               normalizeNotes(req.Notes),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := invoice.Validate(); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, invoice); err != nil {
			return err
		}
		if len(req.FeatureIDs) > 0 {
			if err := s.reconcileFeatures(ctx, tx, invoice, invoicedomain.CountFeatures(req.FeatureIDs)); err != nil {
				return err
			}
		}
		if !req.ChildFeatureSlugs.Blank() {
			if err := s.applyChildSlugs(ctx, tx, invoice, req.ChildFeatureSlugs); err != nil {
				return err
			}
		}
		return s.persist(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, invoice, obsmetrics.OperationCreate)
	return s.view(ctx, s.db, invoice)
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateRequest) (*invoicedomain.View, error) {
	if req.AmountDueCents != nil && *req.AmountDueCents < 0 {
		return nil, invoicedomain.ErrInvalidAmount
	}
	for _, count := range req.FeatureQuantities {
		if count < 0 {
			return nil, invoicedomain.ErrInvalidQuantity
		}
	}

	invoice, err := s.Mutate(ctx, req.ID, obsmetrics.OperationUpdate, func(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		switch {
		case req.ClearAmountDue:
			invoice.AmountDueCents = nil
		case req.AmountDueCents != nil:
			invoice.AmountDueCents = copyInt64(req.AmountDueCents)
		}
		if req.SubscriptionStartAt != nil {
			invoice.SubscriptionStartAt = utcPtr(req.SubscriptionStartAt)
		}
		if req.SubscriptionEndAt != nil {
			invoice.SubscriptionEndAt = utcPtr(req.SubscriptionEndAt)
		}
		if req.ForceActive != nil {
			invoice.ForceActive = *req.ForceActive
		}
		if req.Notes != nil {
			invoice.Notes = normalizeNotes(req.Notes)
		}
		if req.FeatureQuantities != nil {
			if err := s.reconcileFeatures(ctx, tx, invoice, req.FeatureQuantities); err != nil {
				return err
			}
		}
		if !req.ChildFeatureSlugs.Blank() {
			return s.applyChildSlugs(ctx, tx, invoice, req.ChildFeatureSlugs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, invoice)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*invoicedomain.View, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return s.view(ctx, s.db, invoice)
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.View, error) {
	if !req.Scope.Valid() {
		return nil, invoicedomain.ErrInvalidScope
	}
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		OrganizationID: req.OrganizationID,
		Scope:          req.Scope,
		Now:            s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	return s.views(ctx, items)
}

func (s *Service) Save(ctx context.Context, id snowflake.ID) (*invoicedomain.View, error) {
	invoice, err := s.Mutate(ctx, id, obsmetrics.OperationSave, nil)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, invoice)
}

func (s *Service) SetFeatureQuantities(ctx context.Context, id snowflake.ID, quantities map[snowflake.ID]int) (*invoicedomain.View, error) {
	for _, count := range quantities {
		if count < 0 {
			return nil, invoicedomain.ErrInvalidQuantity
		}
	}
	invoice, err := s.Mutate(ctx, id, obsmetrics.OperationFeatures, func(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		return s.reconcileFeatures(ctx, tx, invoice, quantities)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, invoice)
}

// SetChildFeatureSlugs keeps only slugs exposed by the linked features.
// Blank input leaves the invoice untouched.
func (s *Service) SetChildFeatureSlugs(ctx context.Context, id snowflake.ID, input invoicedomain.SlugInput) (*invoicedomain.View, error) {
	if input.Blank() {
		return s.Get(ctx, id)
	}
	invoice, err := s.Mutate(ctx, id, obsmetrics.OperationChildSlugs, func(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		return s.applyChildSlugs(ctx, tx, invoice, input)
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, invoice)
}

// OrganizationFeatureSlugs lists the slugs an organization is entitled to
// through its active invoices.
func (s *Service) OrganizationFeatureSlugs(ctx context.Context, organizationID snowflake.ID) ([]string, error) {
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		OrganizationID: &organizationID,
		Scope:          invoicedomain.ScopeActive,
		Now:            s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	invoiceIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		invoiceIDs = append(invoiceIDs, item.ID)
	}
	featureIDs, err := s.repo.FeatureIDsForInvoices(ctx, s.db, invoiceIDs)
	if err != nil {
		return nil, err
	}
	linked, err := s.resolveFeatures(ctx, s.db, featureIDs)
	if err != nil {
		return nil, err
	}
	return linked.slugs(), nil
}

// RefreshByFeature re-saves every invoice linked to the feature.
func (s *Service) RefreshByFeature(ctx context.Context, featureID snowflake.ID) error {
	invoiceIDs, err := s.repo.InvoiceIDsByFeature(ctx, s.db, featureID)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range invoiceIDs {
		if _, err := s.Mutate(ctx, id, obsmetrics.OperationFeatureRefresh, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mutate locks the invoice row, applies fn, re-derives and persists the
// invoice in one transaction, then signals the owning organization.
func (s *Service) Mutate(ctx context.Context, id snowflake.ID, operation string, fn invoicedomain.MutateFunc) (*invoicedomain.Invoice, error) {
	if id == 0 {
		return nil, invoicedomain.ErrNotFound
	}

	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if locked == nil {
			return invoicedomain.ErrNotFound
		}
		if fn != nil {
			if err := fn(ctx, tx, locked); err != nil {
				return err
			}
		}
		if err := s.persist(ctx, tx, locked); err != nil {
			return err
		}
		invoice = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, invoice, operation)
	return invoice, nil
}

func (s *Service) persist(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	paid, err := s.payments.SumByInvoice(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	invoice.Recompute(now, paid, s.term())
	if err := invoice.Validate(); err != nil {
		return err
	}
	invoice.UpdatedAt = now
	return s.repo.Save(ctx, tx, invoice)
}

func (s *Service) afterCommit(ctx context.Context, invoice *invoicedomain.Invoice, operation string) {
	s.obsMetrics.IncInvoiceMutation(operation)
	if invoice.OrganizationID == 0 {
		return
	}

	log := obslogger.WithOrg(obslogger.WithContext(ctx, s.log), invoice.OrganizationID.String())
	if err := s.notifier.OrganizationChanged(context.WithoutCancel(ctx), invoice.OrganizationID); err != nil {
		s.obsMetrics.IncNotification(obsmetrics.NotificationResultFailed)
		log.Warn("organization change notification failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return
	}
	s.obsMetrics.IncNotification(obsmetrics.NotificationResultOK)
	log.Debug("invoice committed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("operation", operation),
		zap.Bool("active", invoice.IsActive),
	)
}

func (s *Service) reconcileFeatures(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, requested map[snowflake.ID]int) error {
	candidates := make([]snowflake.ID, 0, len(requested))
	for id, count := range requested {
		if count < 0 {
			return invoicedomain.ErrInvalidQuantity
		}
		if count > 0 {
			candidates = append(candidates, id)
		}
	}
	known, err := s.features.ListByIDs(ctx, tx, candidates)
	if err != nil {
		return err
	}
	wanted := make(map[snowflake.ID]int, len(known))
	for _, feature := range known {
		wanted[feature.ID] = requested[feature.ID]
	}

	existing, err := s.repo.FeatureIDs(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	deltas, err := invoicedomain.ReconcileQuantities(existing, wanted)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var links []invoicedomain.InvoiceFeature
	for _, delta := range deltas {
		if delta.Remove > 0 {
			if err := s.repo.DeleteFeatureLinks(ctx, tx, invoice.ID, delta.FeatureID, delta.Remove); err != nil {
				return err
			}
		}
		for i := 0; i < delta.Add; i++ {
			links = append(links, invoicedomain.InvoiceFeature{
				ID:        s.genID.Generate(),
				InvoiceID: invoice.ID,
				FeatureID: delta.FeatureID,
				CreatedAt: now,
			})
		}
	}
	return s.repo.InsertFeatureLinks(ctx, tx, links)
}

func (s *Service) applyChildSlugs(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, input invoicedomain.SlugInput) error {
	linked, err := s.linkedFeatures(ctx, tx, invoice.ID)
	if err != nil {
		return err
	}
	available := make(map[string]struct{})
	for _, slug := range linked.slugs() {
		available[slug] = struct{}{}
	}

	values := input.Values()
	kept := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, ok := available[value]; !ok {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		kept = append(kept, value)
	}
	invoice.ChildFeatureSlugs = datatypes.JSONSlice[string](kept)
	return nil
}

func (s *Service) term() invoicedomain.Term {
	if s.terms == nil {
		return invoicedomain.DefaultTerm
	}
	return s.terms.SubscriptionTerm()
}

// linkedFeatures pairs an invoice's join rows, repeats included, with the
// catalog rows they point at.
type linkedFeatures struct {
	ids  []snowflake.ID
	byID map[snowflake.ID]featuredomain.Feature
}

func (l linkedFeatures) costCents() int64 {
	var total int64
	for _, id := range l.ids {
		total += l.byID[id].AmountCents
	}
	return total
}

func (l linkedFeatures) slugs() []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, id := range l.ids {
		feature, ok := l.byID[id]
		if !ok {
			continue
		}
		for _, slug := range feature.FeatureSlugs {
			if _, dup := seen[slug]; dup {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
	}
	return out
}

func (l linkedFeatures) recurringCounts() map[snowflake.ID]int {
	counts := make(map[snowflake.ID]int)
	for _, id := range l.ids {
		if feature, ok := l.byID[id]; ok && feature.Recurring() {
			counts[id]++
		}
	}
	return counts
}

func (s *Service) linkedFeatures(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (linkedFeatures, error) {
	ids, err := s.repo.FeatureIDs(ctx, db, invoiceID)
	if err != nil {
		return linkedFeatures{}, err
	}
	return s.resolveFeatures(ctx, db, ids)
}

func (s *Service) resolveFeatures(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (linkedFeatures, error) {
	unique := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	features, err := s.features.ListByIDs(ctx, db, unique)
	if err != nil {
		return linkedFeatures{}, err
	}
	byID := make(map[snowflake.ID]featuredomain.Feature, len(features))
	for _, feature := range features {
		byID[feature.ID] = feature
	}
	return linkedFeatures{ids: ids, byID: byID}, nil
}

func normalizeCurrency(value string) (string, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return "", invoicedomain.ErrInvalidCurrency
	}
	unit, err := currency.ParseISO(value)
	if err != nil {
		return "", invoicedomain.ErrInvalidCurrency
	}
	return unit.String(), nil
}

func normalizeNotes(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	t := value.UTC()
	return &t
}

func copyInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
