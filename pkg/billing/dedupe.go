package billing

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims provider event IDs so that a redelivered event is processed once.
type Deduper interface {
	// Claim returns true if the key was not claimed before.
	Claim(ctx context.Context, key string) (bool, error)
	// Release drops a claim so a later redelivery is processed again.
	Release(ctx context.Context, key string) error
}

// DefaultDedupeTTL covers the provider's redelivery window (Stripe retries for up to three days).
const DefaultDedupeTTL = 72 * time.Hour

const dedupeKeyPrefix = "billing:webhook:event:"

// RedisDeduper implements Deduper with SET NX and a TTL.
type RedisDeduper struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisDeduper creates a Redis-backed deduper. A non-positive ttl uses DefaultDedupeTTL.
func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	if client == nil {
		panic("billing: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	ok, err := d.client.SetNX(ctx, dedupeKeyPrefix+key, time.Now().UTC().Unix(), d.ttl).Result()
	if err != nil {
		return false, errors.Join(errors.New("failed to claim webhook event"), err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := d.client.Del(ctx, dedupeKeyPrefix+key).Err(); err != nil {
		return errors.Join(errors.New("failed to release webhook event"), err)
	}
	return nil
}

func dedupeKey(provider, eventID string) string {
	if eventID == "" {
		return ""
	}
	return provider + ":" + eventID
}
