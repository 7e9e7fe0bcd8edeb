package invoice

import (
	"github.com/smallbiznis/entitlements/internal/config"
	featuredomain "github.com/smallbiznis/entitlements/internal/feature/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/invoice/repository"
	"github.com/smallbiznis/entitlements/internal/invoice/service"
	paymentdomain "github.com/smallbiznis/entitlements/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(providePaymentTotals),
	fx.Provide(provideTerms),
	fx.Provide(fx.Annotate(
		service.New,
		fx.As(new(domain.Service)),
		fx.As(new(domain.Mutator)),
		fx.As(new(featuredomain.InvoiceRefresher)),
	)),
)

func providePaymentTotals(repo paymentdomain.Repository) domain.PaymentTotals {
	return repo
}

func provideTerms(holder *config.EntitlementConfigHolder) domain.TermSource {
	return configTerms{holder: holder}
}

// configTerms reads the term on every call so reloads take effect.
type configTerms struct {
	holder *config.EntitlementConfigHolder
}

func (c configTerms) SubscriptionTerm() domain.Term {
	term := c.holder.Get().Subscription
	return domain.Term{Years: term.Years, Months: term.Months, Days: term.Days}
}
