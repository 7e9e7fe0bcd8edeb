package feature

import (
	"github.com/smallbiznis/entitlements/internal/config"
	"github.com/smallbiznis/entitlements/internal/feature/domain"
	"github.com/smallbiznis/entitlements/internal/feature/repository"
	"github.com/smallbiznis/entitlements/internal/feature/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feature.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideAllowList),
	fx.Provide(service.New),
)

func provideAllowList(holder *config.EntitlementConfigHolder) domain.SlugAllowList {
	return holder
}
