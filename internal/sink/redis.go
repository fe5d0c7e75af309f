package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marketpulse/internal/aggregate"
)

// RedisClient is the subset of redis.Cmdable used by Redis.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis stores the latest Snapshot as JSON under Key and announces it on
// Channel. Either may be empty to skip that step.
type Redis struct {
	client  RedisClient
	Key     string
	Channel string
	TTL     time.Duration
}

func NewRedis(client RedisClient, key, channel string, ttl time.Duration) *Redis {
	return &Redis{client: client, Key: key, Channel: channel, TTL: ttl}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Publish(ctx context.Context, snap aggregate.Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if r.Key != "" {
		if err := r.client.Set(ctx, r.Key, body, r.TTL).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", r.Key, err)
		}
	}
	if r.Channel != "" {
		if err := r.client.Publish(ctx, r.Channel, body).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", r.Channel, err)
		}
	}
	return nil
}
