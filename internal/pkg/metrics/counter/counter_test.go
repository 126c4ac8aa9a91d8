package counter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
)

const counterTestRedisDB = 13

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       counterTestRedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestCounters_NilClient(t *testing.T) {
	var c *Counters
	assert.NoError(t, c.AddWebhookAck(context.Background(), "processed"))

	snap, err := New(nil).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap["webhook_acks"])
	assert.Empty(t, snap["poll_results"])
}

func TestCounters_Snapshot(t *testing.T) {
	c := New(newTestRedis(t))
	ctx := context.Background()

	require.NoError(t, c.AddWebhookAck(ctx, "processed"))
	require.NoError(t, c.AddWebhookAck(ctx, "processed"))
	require.NoError(t, c.AddWebhookAck(ctx, "duplicate"))
	require.NoError(t, c.AddPollResult(ctx, "unknown"))
	require.NoError(t, c.AddPollResult(ctx, ""))

	snap, err := c.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"processed": 2, "duplicate": 1}, snap["webhook_acks"])
	assert.Equal(t, map[string]int64{"unknown": 1}, snap["poll_results"])
}
