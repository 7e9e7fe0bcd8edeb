package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitlements/internal/clock"
	"github.com/smallbiznis/entitlements/internal/config"
	"github.com/smallbiznis/entitlements/internal/feature"
	featuredomain "github.com/smallbiznis/entitlements/internal/feature/domain"
	"github.com/smallbiznis/entitlements/internal/invoice"
	invoicedomain "github.com/smallbiznis/entitlements/internal/invoice/domain"
	"github.com/smallbiznis/entitlements/internal/migration"
	"github.com/smallbiznis/entitlements/internal/notify"
	"github.com/smallbiznis/entitlements/internal/observability"
	"github.com/smallbiznis/entitlements/internal/payment"
	paymentdomain "github.com/smallbiznis/entitlements/internal/payment/domain"
	"github.com/smallbiznis/entitlements/internal/scheduler"
	"github.com/smallbiznis/entitlements/pkg/db"
	"github.com/smallbiznis/entitlements/pkg/redisclient"
	"go.uber.org/fx"
)

type services struct {
	features  featuredomain.Service
	invoices  invoicedomain.Service
	payments  paymentdomain.Service
	scheduler *scheduler.Scheduler
}

// run starts the ledger's dependency graph without the cron trigger, calls
// fn and shuts the graph down again.
func run(ctx context.Context, fn func(ctx context.Context, svc services) error) error {
	var svc services
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.NodeID)
		}),
		db.Module,
		redisclient.Module,
		clock.Module,
		migration.Module,

		feature.Module,
		payment.Module,
		invoice.Module,
		notify.Module,
		fx.Provide(scheduler.ProvideConfig, scheduler.New),

		fx.Populate(&svc.features, &svc.invoices, &svc.payments, &svc.scheduler),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start ledger: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFeatureID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid feature id %q", value)
	}
	return id, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", value)
}

// parseQuantities reads repeated "featureID=count" pairs.
func parseQuantities(pairs []string) (map[snowflake.ID]int, error) {
	out := make(map[snowflake.ID]int, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid quantity %q, want featureID=count", pair)
		}
		id, err := parseFeatureID(key)
		if err != nil {
			return nil, err
		}
		count, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid count in %q", pair)
		}
		out[id] += count
	}
	return out, nil
}
