// Package lock implements core/lock.Locker on Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	corelock "prodflow/internal/core/lock"
	"prodflow/pkg/logger"
)

// DefaultTTL bounds how long a crashed holder keeps an order locked.
const DefaultTTL = 30 * time.Second

// RedisLocker obtains per-key locks through redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	opts   *redislock.Options
}

var _ corelock.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker. Obtain retries briefly before giving up
// so two operators clicking at once serialize instead of failing.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		ttl:    ttl,
		opts: &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 20),
		},
	}
}

// Obtain implements corelock.Locker.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, key, l.ttl, l.opts)
	if err != nil {
		return nil, mapObtainErr(key, err)
	}

	return func() {
		// the request context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func mapObtainErr(key string, err error) error {
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%s: %w", key, corelock.ErrNotObtained)
	}
	return fmt.Errorf("obtain lock %s: %w", key, err)
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
