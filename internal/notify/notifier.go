// Package notify signals that an organization's entitlements need to be
// recomputed by whoever owns organization state.
package notify

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Notifier receives one call per committed invoice mutation. Delivery is at
// least once; consumers must treat the signal as idempotent.
type Notifier interface {
	OrganizationChanged(ctx context.Context, organizationID snowflake.ID) error
}

// LogNotifier only records the signal.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) OrganizationChanged(ctx context.Context, organizationID snowflake.ID) error {
	n.log.Info("organization changed", zap.String("organization_id", organizationID.String()))
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) OrganizationChanged(ctx context.Context, organizationID snowflake.ID) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.OrganizationChanged(ctx, organizationID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
