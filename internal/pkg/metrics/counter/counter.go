package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	webhookAcksKey = "payments:counters:webhook_acks"
	pollResultsKey = "payments:counters:poll_results"
)

// Counters keeps running totals of payment callbacks and status polls in
// Redis hashes, shared by every app instance.
type Counters struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Counters {
	return &Counters{rdb: rdb}
}

// AddWebhookAck counts one webhook delivery under its acknowledgement.
func (c *Counters) AddWebhookAck(ctx context.Context, ack string) error {
	return c.incr(ctx, webhookAcksKey, ack)
}

// AddPollResult counts one status poll, keyed checked, unknown or cached.
func (c *Counters) AddPollResult(ctx context.Context, result string) error {
	return c.incr(ctx, pollResultsKey, result)
}

func (c *Counters) incr(ctx context.Context, key, field string) error {
	if c == nil || c.rdb == nil || field == "" {
		return nil
	}
	return c.rdb.HIncrBy(ctx, key, field, 1).Err()
}

// Snapshot returns the current totals grouped by counter name.
func (c *Counters) Snapshot(ctx context.Context) (map[string]map[string]int64, error) {
	out := map[string]map[string]int64{
		"webhook_acks": {},
		"poll_results": {},
	}
	if c == nil || c.rdb == nil {
		return out, nil
	}
	for name, key := range map[string]string{"webhook_acks": webhookAcksKey, "poll_results": pollResultsKey} {
		data, err := c.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		for field, v := range data {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				continue
			}
			out[name][field] = n
		}
	}
	return out, nil
}
