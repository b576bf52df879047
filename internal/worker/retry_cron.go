package worker

// retry_cron.go
// Background goroutine that moves failed jobs whose backoff has elapsed from
// the delayed set back onto their queue. While the mail circuit breaker is
// open the tick is skipped so jobs are not burned against a downed relay.

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"fulfillment/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 10

	// RetrySetKey is a sorted set of {queue, job} scored by the unix time the
	// job becomes due.
	RetrySetKey = "jobs:retry"
)

type delayedJob struct {
	Queue string `json:"queue"`
	Job   Job    `json:"job"`
}

// ScheduleRetry parks job until delay has elapsed.
func ScheduleRetry(ctx context.Context, rdb *redis.Client, queue string, job Job, delay time.Duration) error {
	data, err := json.Marshal(delayedJob{Queue: queue, Job: job})
	if err != nil {
		return err
	}
	due := float64(time.Now().Add(delay).Unix())
	return rdb.ZAdd(ctx, RetrySetKey, redis.Z{Score: due, Member: data}).Err()
}

// retryBackoff returns 30s, 60s, 120s... capped at 30 minutes.
func retryBackoff(attempts int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return d
}

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	RDB *redis.Client
	CB  *infra.CircuitBreaker
}

// StartRetryCron ticks every 30s and requeues due jobs.
// It respects the context for graceful shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg, time.Now())
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig, now time.Time) int {
	if cfg.CB != nil && cfg.CB.State() == infra.BreakerOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping tick")
		return 0
	}

	due, err := cfg.RDB.ZRangeByScore(ctx, RetrySetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: retryBatchSize,
	}).Result()
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query due jobs")
		return 0
	}

	requeued := 0
	for _, member := range due {
		// ZRem guards against another replica requeuing the same member.
		removed, err := cfg.RDB.ZRem(ctx, RetrySetKey, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		var dj delayedJob
		if err := json.Unmarshal([]byte(member), &dj); err != nil {
			log.Error().Err(err).Msg("retry_cron: dropping unreadable job")
			continue
		}
		if err := push(ctx, cfg.RDB, dj.Queue, dj.Job); err != nil {
			log.Error().Err(err).Str("queue", dj.Queue).Msg("retry_cron: requeue failed")
			continue
		}
		requeued++
	}
	if requeued > 0 {
		log.Info().Int("count", requeued).Msg("retry_cron: requeued jobs")
	}
	return requeued
}
