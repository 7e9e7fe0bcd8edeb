package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlements/internal/clock"
)

const DefaultChannel = "entitlements:organization_changed"

// Event is the payload published for each organization change.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const eventTypeOrganizationChanged = "organization.changed"

// RedisNotifier publishes change events on a Redis channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	clock   clock.Clock
}

func NewRedisNotifier(client *redis.Client, channel string, clk clock.Clock) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &RedisNotifier{client: client, channel: channel, clock: clk}
}

func (n *RedisNotifier) OrganizationChanged(ctx context.Context, organizationID snowflake.ID) error {
	if n == nil || n.client == nil {
		return errors.New("redis notifier not configured")
	}
	now := n.clock.Now()
	payload, err := json.Marshal(Event{
		ID:             ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:           eventTypeOrganizationChanged,
		OrganizationID: organizationID.String(),
		OccurredAt:     now,
	})
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish organization change: %w", err)
	}
	return nil
}
