package subscription

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis-backed usage store.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// ConnectRedis establishes a Redis connection, retrying up to
// cfg.RetryAttempts times with cfg.RetryInterval between attempts.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrRedisUnavailable, err)
	}

	var lastErr error
	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		err := client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		lastErr = err
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisUnavailable, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrRedisUnavailable, lastErr)
}

// redisUsageStore keeps usage counters in one hash per subscription,
// keyed by feature code.
type redisUsageStore struct {
	client *redis.Client
	prefix string
}

// NewRedisUsageStore returns a UsageStore backed by Redis hashes. Keys are
// namespaced under "plankit:usage:<subscription-id>".
func NewRedisUsageStore(client *redis.Client) UsageStore {
	return &redisUsageStore{client: client, prefix: "plankit:usage:"}
}

func (s *redisUsageStore) key(subscriptionID uuid.UUID) string {
	return s.prefix + subscriptionID.String()
}

func (s *redisUsageStore) Get(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (*Usage, error) {
	raw, err := s.client.HGet(ctx, s.key(subscriptionID), featureCode).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUsageNotFound
		}
		return nil, err
	}
	used, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &Usage{SubscriptionID: subscriptionID, FeatureCode: featureCode, Used: used}, nil
}

func (s *redisUsageStore) Save(ctx context.Context, usage *Usage) error {
	return s.client.HSet(ctx, s.key(usage.SubscriptionID), usage.FeatureCode,
		strconv.FormatFloat(usage.Used, 'f', -1, 64)).Err()
}

func (s *redisUsageStore) DeleteForSubscription(ctx context.Context, subscriptionID uuid.UUID) error {
	return s.client.Del(ctx, s.key(subscriptionID)).Err()
}
