package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores processed webhook delivery ids in Redis so all
// instances can avoid reapplying the same delivery.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(deliveryID string) string {
	return "webhook:" + deliveryID
}

// Add records the delivery id if it does not already exist. It returns true
// when the id was newly added.
func (r *RedisDeduper) Add(ctx context.Context, deliveryID string) (bool, error) {
	return r.client.SetNX(ctx, r.key(deliveryID), 1, r.ttl).Result()
}

// Remove deletes a previously recorded id. It is used when applying the
// delivery fails so the provider's retry is not swallowed.
func (r *RedisDeduper) Remove(ctx context.Context, deliveryID string) error {
	return r.client.Del(ctx, r.key(deliveryID)).Err()
}
