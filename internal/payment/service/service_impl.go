package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/clock"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/entitlements/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/entitlements/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Invoices   invoicedomain.Mutator
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	invoices   invoicedomain.Mutator
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		invoices:   p.Invoices,
		obsMetrics: p.ObsMetrics,
	}
}

// RecordPayment appends a payment and re-derives the invoice in the same
// transaction.
func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordRequest) (*paymentdomain.Response, error) {
	if req.AmountCents <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	if req.InvoiceID == 0 {
		return nil, paymentdomain.ErrInvalidInvoice
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil && !req.PaidAt.IsZero() {
		paidAt = req.PaidAt.UTC()
	}

	var record *paymentdomain.Payment
	invoice, err := s.invoices.Mutate(ctx, req.InvoiceID, obsmetrics.OperationPayment, func(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		record = &paymentdomain.Payment{
			ID:             s.genID.Generate(),
			InvoiceID:      invoice.ID,
			OrganizationID: invoice.OrganizationID,
			AmountCents:    req.AmountCents,
			Currency:       invoice.Currency,
			Reference:      normalizeReference(req.Reference),
			PaidAt:         paidAt,
			CreatedAt:      now,
		}
		return s.repo.Insert(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordPayment(record.AmountCents)
	s.log.Info("payment recorded",
		zap.String("payment_id", record.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int64("amount_cents", record.AmountCents),
		zap.Int64("amount_paid_cents", invoice.AmountPaidCents),
		zap.Bool("active", invoice.IsActive),
	)

	resp := toResponse(record)
	resp.InvoiceAmountPaid = invoice.AmountPaidCents
	resp.InvoiceActive = invoice.IsActive
	return &resp, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID snowflake.ID) ([]paymentdomain.Response, error) {
	items, err := s.repo.ListByInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	resp := make([]paymentdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func toResponse(p *paymentdomain.Payment) paymentdomain.Response {
	return paymentdomain.Response{
		ID:             p.ID.String(),
		InvoiceID:      p.InvoiceID.String(),
		OrganizationID: p.OrganizationID.String(),
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Reference:      p.Reference,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
	}
}

func normalizeReference(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
