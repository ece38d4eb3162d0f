package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore shares the rate-limit window across replicas using
// INCR with an expiry set on the first hit. The window is fixed rather
// than sliding, the usual trade-off for a shared counter.
type RedisCounterStore struct {
	client redis.UniversalClient
}

func NewRedisCounterStore(ctx context.Context, devMode bool, endpoint string) (*RedisCounterStore, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: endpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:      endpoint,
			TLSConfig: &tls.Config{},
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisCounterStore{client: client}, nil
}

func (r *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	redisKey := "ratelimit:{" + key + "}"
	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.client.Expire(ctx, redisKey, window)
	}
	return count, nil
}
