package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/entitlements/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func (s *Service) ChainHeadID(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	invoice, err := s.mustFind(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	return invoice.HeadID(), nil
}

// PreviousInvoice is nil for the head of a chain. A renewal with no earlier
// sibling falls back to the head.
func (s *Service) PreviousInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.View, error) {
	invoice, err := s.mustFind(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !invoice.IsRenewal() {
		return nil, nil
	}
	previous, err := s.repo.PreviousInChain(ctx, s.db, invoice.HeadID(), invoice.ID)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		previous, err = s.repo.FindByID(ctx, s.db, invoice.HeadID())
		if err != nil {
			return nil, err
		}
	}
	return s.view(ctx, s.db, previous)
}

func (s *Service) FollowingInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.View, error) {
	invoice, err := s.mustFind(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	following, err := s.repo.FollowingInChain(ctx, s.db, invoice.HeadID(), invoice.ID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.db, following)
}

// ChainMembers lists the renewals of the chain, excluding the invoice itself.
func (s *Service) ChainMembers(ctx context.Context, id snowflake.ID) ([]invoicedomain.View, error) {
	invoice, err := s.mustFind(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ChainMembers(ctx, s.db, invoice.HeadID(), invoice.ID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, members)
}

// CreateFollowingInvoice synthesizes the next period of the chain. The
// predecessor row stays locked until the renewal commits so concurrent calls
// for the same invoice create at most one renewal.
func (s *Service) CreateFollowingInvoice(ctx context.Context, id snowflake.ID) (*invoicedomain.View, error) {
	var (
		created  *invoicedomain.Invoice
		existing *invoicedomain.Invoice
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		predecessor, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if predecessor == nil {
			return invoicedomain.ErrNotFound
		}

		now := s.clock.Now()
		if !predecessor.IsActive && !predecessor.WasActive(now) {
			return nil
		}

		existing, err = s.repo.FollowingInChain(ctx, tx, predecessor.HeadID(), predecessor.ID)
		if err != nil || existing != nil {
			return err
		}

		headID := predecessor.HeadID()
		renewal := &invoicedomain.Invoice{
			ID:                  s.genID.Generate(),
			OrganizationID:      predecessor.OrganizationID,
			Kind:                predecessor.Kind,
			Currency:            predecessor.Currency,
			FirstInvoiceID:      &headID,
			SubscriptionStartAt: utcPtr(predecessor.SubscriptionEndAt),
			ChildFeatureSlugs:   datatypes.JSONSlice[string]{},
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.repo.Create(ctx, tx, renewal); err != nil {
			return err
		}

		linked, err := s.linkedFeatures(ctx, tx, predecessor.ID)
		if err != nil {
			return err
		}
		if err := s.reconcileFeatures(ctx, tx, renewal, linked.recurringCounts()); err != nil {
			return err
		}
		renewal.ChildFeatureSlugs = append(datatypes.JSONSlice[string]{}, predecessor.ChildFeatureSlugs...)

		if err := s.persist(ctx, tx, renewal); err != nil {
			return err
		}
		created = renewal
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch {
	case created != nil:
		s.obsMetrics.IncRenewalCreated()
		s.log.Info("renewal invoice created",
			zap.String("invoice_id", created.ID.String()),
			zap.String("predecessor_id", id.String()),
			zap.String("head_id", created.HeadID().String()),
		)
		s.afterCommit(ctx, created, obsmetrics.OperationRenewal)
		return s.view(ctx, s.db, created)
	case existing != nil:
		return s.view(ctx, s.db, existing)
	default:
		return nil, nil
	}
}

// ListShouldExpire pages through invoices still flagged active whose period
// ended before now.
func (s *Service) ListShouldExpire(ctx context.Context, now time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		Scope:   invoicedomain.ScopeShouldExpire,
		Now:     now,
		AfterID: afterID,
		Limit:   limit,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids, nil
}

func (s *Service) mustFind(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return invoice, nil
}
