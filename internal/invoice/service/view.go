package service

import (
	"context"
	"time"

	featuredomain "github.com/smallbiznis/entitlements/internal/feature/domain"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/format"
	"gorm.io/gorm"
)

func (s *Service) view(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) (*invoicedomain.View, error) {
	if invoice == nil {
		return nil, nil
	}
	linked, err := s.linkedFeatures(ctx, db, invoice.ID)
	if err != nil {
		return nil, err
	}
	v := buildView(invoice, linked, s.clock.Now())
	return &v, nil
}

func (s *Service) views(ctx context.Context, items []invoicedomain.Invoice) ([]invoicedomain.View, error) {
	out := make([]invoicedomain.View, 0, len(items))
	for i := range items {
		v, err := s.view(ctx, s.db, &items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func buildView(invoice *invoicedomain.Invoice, linked linkedFeatures, now time.Time) invoicedomain.View {
	cost := linked.costCents()
	discount := invoice.Discount(cost)

	featureIDs := make([]string, 0, len(linked.ids))
	for _, id := range linked.ids {
		featureIDs = append(featureIDs, id.String())
	}
	childSlugs := []string(invoice.ChildFeatureSlugs)
	if childSlugs == nil {
		childSlugs = []string{}
	}

	v := invoicedomain.View{
		ID:                      invoice.ID.String(),
		DisplayName:             invoice.DisplayName(),
		OrganizationID:          invoice.OrganizationID.String(),
		Kind:                    invoice.Kind,
		Currency:                invoice.Currency,
		HeadID:                  invoice.HeadID().String(),
		Renewal:                 invoice.IsRenewal(),
		SubscriptionStartAt:     invoice.SubscriptionStartAt,
		SubscriptionEndAt:       invoice.SubscriptionEndAt,
		AmountDueCents:          invoice.AmountDueCents,
		AmountDue:               format.DisplayAmountPtr(invoice.AmountDueCents),
		AmountDueFormatted:      format.MoneyPtr(invoice.AmountDueCents, invoice.Currency),
		AmountPaidCents:         invoice.AmountPaidCents,
		AmountPaidFormatted:     format.Money(invoice.AmountPaidCents, invoice.Currency),
		FeatureCostCents:        cost,
		DiscountCents:           discount,
		DiscountFormatted:       format.Money(-discount, invoice.Currency),
		FeatureIDs:              featureIDs,
		FeatureSlugs:            linked.slugs(),
		ChildFeatureSlugs:       childSlugs,
		ChildFeatureSlugsString: featuredomain.JoinSlugs(childSlugs),
		ForceActive:             invoice.ForceActive,
		Active:                  invoice.IsActive,
		PaidInFull:              invoice.PaidInFull(),
		Status:                  invoice.Status(now),
		Notes:                   invoice.Notes,
		CreatedAt:               invoice.CreatedAt,
		UpdatedAt:               invoice.UpdatedAt,
	}
	if invoice.IsRenewal() {
		head := invoice.FirstInvoiceID.String()
		v.FirstInvoiceID = &head
	}
	return v
}
