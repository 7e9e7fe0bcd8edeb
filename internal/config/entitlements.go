package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultAllowedSlugs lists every entitlement slug the product checks for.
// Features may only carry slugs from this list.
var DefaultAllowedSlugs = []string{
	"csv_exports",
	"messages",
	"geolocated_messages",
	"abandoned_bike_messages",
	"avery_export",
	"bike_search",
	"show_bulk_import",
	"show_recoveries",
	"show_partial_registrations",
	"show_multi_serial",
	"skip_ownership_email",
	"unstolen_notifications",
	"bike_codes",
	"impound_bikes",
	"passwordless_users",
	"regional_bike_counts",
	"regional_stickers",
	"reg_affiliation",
	"reg_secondary_serial",
	"reg_phone",
	"reg_address",
}

// EntitlementConfig holds the ledger rules that operators may change without
// a deploy.
type EntitlementConfig struct {
	AllowedSlugs []string         `mapstructure:"allowedSlugs"`
	Subscription SubscriptionTerm `mapstructure:"subscription"`
}

// SubscriptionTerm is the default length of one billing period.
type SubscriptionTerm struct {
	Years  int `mapstructure:"years"`
	Months int `mapstructure:"months"`
	Days   int `mapstructure:"days"`
}

func DefaultEntitlementConfig() EntitlementConfig {
	slugs := make([]string, len(DefaultAllowedSlugs))
	copy(slugs, DefaultAllowedSlugs)
	return EntitlementConfig{
		AllowedSlugs: slugs,
		Subscription: SubscriptionTerm{Years: 1},
	}
}

type EntitlementConfigHolder struct {
	current atomic.Value // holds EntitlementConfig
}

// NewStaticEntitlementConfigHolder returns a holder that never reloads.
func NewStaticEntitlementConfigHolder(cfg EntitlementConfig) *EntitlementConfigHolder {
	holder := &EntitlementConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEntitlementConfigHolder(cfg Config, log *zap.Logger) (*EntitlementConfigHolder, error) {
	v := viper.New()

	if cfg.EntitlementsConfig != "" {
		v.SetConfigFile(cfg.EntitlementsConfig)
	} else {
		v.SetConfigName("entitlements")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/entitlements")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ENTITLEMENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEntitlementConfig()
	v.SetDefault("entitlements.allowedSlugs", defaults.AllowedSlugs)
	v.SetDefault("entitlements.subscription.years", defaults.Subscription.Years)
	v.SetDefault("entitlements.subscription.months", defaults.Subscription.Months)
	v.SetDefault("entitlements.subscription.days", defaults.Subscription.Days)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		watch = false
	}

	loaded, err := decodeEntitlementConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateEntitlementConfig(loaded); err != nil {
		return nil, err
	}

	holder := NewStaticEntitlementConfigHolder(loaded)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeEntitlementConfig(v)
		if err != nil {
			log.Warn("entitlements config reload failed", zap.Error(err))
			return
		}
		if err := validateEntitlementConfig(updated); err != nil {
			log.Warn("invalid entitlements config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("entitlements config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *EntitlementConfigHolder) Get() EntitlementConfig {
	return h.current.Load().(EntitlementConfig)
}

// AllowedSlugs returns the current slug allow-list.
func (h *EntitlementConfigHolder) AllowedSlugs() []string {
	return h.Get().AllowedSlugs
}

// decodeEntitlementConfig merges file values over defaults key by key.
func decodeEntitlementConfig(v *viper.Viper) (EntitlementConfig, error) {
	var wrapper struct {
		Entitlements EntitlementConfig `mapstructure:"entitlements"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return EntitlementConfig{}, err
	}
	return normalizeEntitlementConfig(wrapper.Entitlements), nil
}

func normalizeEntitlementConfig(cfg EntitlementConfig) EntitlementConfig {
	seen := make(map[string]struct{}, len(cfg.AllowedSlugs))
	slugs := make([]string, 0, len(cfg.AllowedSlugs))
	for _, raw := range cfg.AllowedSlugs {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		slugs = append(slugs, value)
	}
	cfg.AllowedSlugs = slugs
	return cfg
}

func validateEntitlementConfig(cfg EntitlementConfig) error {
	if len(cfg.AllowedSlugs) == 0 {
		return errors.New("entitlements.allowedSlugs cannot be empty")
	}
	term := cfg.Subscription
	if term.Years < 0 || term.Months < 0 || term.Days < 0 {
		return errors.New("entitlements.subscription cannot be negative")
	}
	if term.Years == 0 && term.Months == 0 && term.Days == 0 {
		return errors.New("entitlements.subscription cannot be empty")
	}
	return nil
}
