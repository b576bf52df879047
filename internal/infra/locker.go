package infra

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLocker hands out short-lived Redis locks. It is best-effort: when the
// lock is held elsewhere past the retry budget, or Redis is unreachable,
// Obtain returns a no-op release and a nil error so the caller proceeds and
// relies on the database guard.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, wait: ttl / 2}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(), error) {
	retries := int(l.wait / (50 * time.Millisecond))
	lock, err := l.client.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		log.Warn().Str("lock", key).Msg("redis lock not obtained; proceeding without it")
		return func() {}, nil
	}
	if err != nil {
		log.Warn().Err(err).Str("lock", key).Msg("redis lock error; proceeding without it")
		return func() {}, nil
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Str("lock", key).Msg("redis lock release failed")
		}
	}, nil
}
