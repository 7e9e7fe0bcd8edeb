package notify

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlements/internal/clock"
	"github.com/smallbiznis/entitlements/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock
	Redis  *redis.Client `optional:"true"`
}

// New always logs the signal and also publishes it when Redis is available.
func New(p Params) Notifier {
	logNotifier := NewLogNotifier(p.Log)
	if p.Redis == nil {
		return logNotifier
	}
	return Fanout{logNotifier, NewRedisNotifier(p.Redis, p.Config.Redis.NotifyChannel, p.Clock)}
}
