package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fulfillment/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueOverrideAudit = "jobs:override_audit"

	JobOverrideAudit = "override_audit"

	// MaxAttempts is how many times a job runs before it is dead-lettered.
	MaxAttempts = 5
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Handler processes one job payload. A non-nil error schedules a retry.
type Handler interface {
	Process(ctx context.Context, raw json.RawMessage) error
}

// OverrideAuditPayload is the job body pushed to QueueOverrideAudit.
type OverrideAuditPayload struct {
	ClosureID      string `json:"closure_id"`
	DocumentType   string `json:"document_type"`
	DocumentID     string `json:"document_id"`
	ClosedBy       string `json:"closed_by"`
	OverrideReason string `json:"override_reason"`
	Unfulfilled    string `json:"unfulfilled"`
	ClosedAt       string `json:"closed_at"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// NotifyOverride pushes an audit notice for a close accepted with an admin
// override.
func (d *Dispatcher) NotifyOverride(ctx context.Context, c model.DocumentClosure) error {
	reason := ""
	if c.OverrideReason != nil {
		reason = *c.OverrideReason
	}
	return d.enqueue(ctx, QueueOverrideAudit, JobOverrideAudit, OverrideAuditPayload{
		ClosureID:      c.ID.String(),
		DocumentType:   string(c.DocumentType),
		DocumentID:     c.DocumentID.String(),
		ClosedBy:       c.ClosedBy,
		OverrideReason: reason,
		Unfulfilled:    c.Unfulfilled,
		ClosedAt:       c.ClosedAt.UTC().Format(time.RFC3339),
	})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return push(ctx, d.rdb, queue, Job{Type: jobType, Payload: data})
}

func push(ctx context.Context, rdb *redis.Client, queue string, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return rdb.LPush(ctx, queue, encoded).Err()
}

// Pool consumes the job queues with a fixed number of goroutines.
type Pool struct {
	rdb      *redis.Client
	handlers map[string]Handler
}

// NewPool maps queue names to the handler that processes their jobs.
func NewPool(rdb *redis.Client, handlers map[string]Handler) *Pool {
	return &Pool{rdb: rdb, handlers: handlers}
}

// Start launches numWorkers goroutines consuming every registered queue.
// Each goroutine blocks on BRPOP, so idle workers cost no CPU.
func (p *Pool) Start(ctx context.Context, numWorkers int) {
	queues := make([]string, 0, len(p.handlers))
	for q := range p.handlers {
		queues = append(queues, q)
	}
	for i := 0; i < numWorkers; i++ {
		go p.run(ctx, i, queues)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func (p *Pool) run(ctx context.Context, id int, queues []string) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop; waits up to 5s then loops to check ctx
			result, err := p.rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			p.process(ctx, result[0], result[1])
		}
	}
}

func (p *Pool) process(ctx context.Context, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}
	h, ok := p.handlers[queue]
	if !ok {
		log.Error().Str("queue", queue).Str("type", job.Type).Msg("no handler for queue")
		return
	}

	job.Attempts++
	err := h.Process(ctx, job.Payload)
	if err == nil {
		return
	}
	if job.Attempts >= MaxAttempts {
		SendToDLQ(ctx, p.rdb, queue, job.Type, job.Payload,
			fmt.Sprintf("max attempts (%d) exceeded: %s", MaxAttempts, err), job.Attempts)
		return
	}
	log.Warn().Err(err).Str("queue", queue).Int("attempts", job.Attempts).Msg("job failed, scheduling retry")
	if err := ScheduleRetry(ctx, p.rdb, queue, job, retryBackoff(job.Attempts)); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("failed to schedule retry")
	}
}
