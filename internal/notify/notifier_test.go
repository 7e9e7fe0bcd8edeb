package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/entitlements/internal/clock"
	"github.com/smallbiznis/entitlements/internal/notify/notifytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisNotifier_PublishesEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "org-changes")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	notifier := NewRedisNotifier(client, "org-changes", clock.NewFakeClock(now))
	require.NoError(t, notifier.OrganizationChanged(ctx, snowflake.ID(42)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, "42", event.OrganizationID)
	assert.Equal(t, eventTypeOrganizationChanged, event.Type)
	assert.True(t, event.OccurredAt.Equal(now))
	assert.Len(t, event.ID, 26)
}

func TestRedisNotifier_DefaultChannel(t *testing.T) {
	notifier := NewRedisNotifier(nil, "", nil)
	assert.Equal(t, DefaultChannel, notifier.channel)
	assert.Error(t, notifier.OrganizationChanged(context.Background(), 1))
}

func TestFanout_JoinsErrors(t *testing.T) {
	ok := &notifytest.Recorder{}
	failing := &notifytest.Recorder{}
	boom := errors.New("boom")
	failing.FailWith(boom)

	err := Fanout{ok, nil, failing}.OrganizationChanged(context.Background(), 7)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.Count())
	assert.Equal(t, 1, failing.Count())
}

func TestLogNotifier_NeverFails(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	assert.NoError(t, n.OrganizationChanged(context.Background(), 9))
}
