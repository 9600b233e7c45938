package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBadJob marks a queue entry that can never be processed.
var ErrBadJob = errors.New("malformed dispatch job")

// EnqueueAnnouncement schedules receipt fan-out for an announcement.
func EnqueueAnnouncement(ctx context.Context, q JobQueue, id int64) error {
	return q.Enqueue(ctx, PendingQueueKey, strconv.FormatInt(id, 10))
}

// AttemptCounter tracks failed attempts per job across workers.
type AttemptCounter interface {
	Incr(ctx context.Context, job string) (int64, error)
	Reset(ctx context.Context, job string) error
}

// RedisAttemptCounter keeps attempt counts in one redis hash.
type RedisAttemptCounter struct {
	client *redis.Client
}

func NewRedisAttemptCounter(client *redis.Client) *RedisAttemptCounter {
	return &RedisAttemptCounter{client: client}
}

func (c *RedisAttemptCounter) Incr(ctx context.Context, job string) (int64, error) {
	return c.client.HIncrBy(ctx, dispatchAttemptsKey, job, 1).Result()
}

func (c *RedisAttemptCounter) Reset(ctx context.Context, job string) error {
	return c.client.HDel(ctx, dispatchAttemptsKey, job).Err()
}

// AnnouncementDispatcher turns queued announcement ids into read receipts.
type AnnouncementDispatcher struct {
	repo     AnnouncementRepository
	queue    JobQueue
	attempts AttemptCounter
}

func NewAnnouncementDispatcher(repo AnnouncementRepository, queue JobQueue, attempts AttemptCounter) *AnnouncementDispatcher {
	return &AnnouncementDispatcher{repo: repo, queue: queue, attempts: attempts}
}

// Process fans out one job and returns the number of receipts created.
func (d *AnnouncementDispatcher) Process(ctx context.Context, job string) (int64, error) {
	id, err := strconv.ParseInt(job, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadJob, job)
	}
	return d.repo.FanOut(ctx, id)
}

// Handle processes a reserved job, re-enqueues transient failures up to MaxDispatchAttempts,
// and always acks the reservation. The returned error is the processing error, for reporting.
func (d *AnnouncementDispatcher) Handle(ctx context.Context, job string) (int64, error) {
	created, procErr := d.Process(ctx, job)
	switch {
	case procErr == nil:
		if err := d.attempts.Reset(ctx, job); err != nil {
			log.Printf("[dispatch] reset attempts for %s: %v", job, err)
		}
	case errors.Is(procErr, ErrBadJob), errors.Is(procErr, ErrNotFound):
		log.Printf("[dispatch] drop job %s: %v", job, procErr)
		_ = d.attempts.Reset(ctx, job)
	default:
		attempt, err := d.attempts.Incr(ctx, job)
		if err != nil {
			log.Printf("[dispatch] count attempt for %s: %v", job, err)
		}
		if attempt < MaxDispatchAttempts {
			if err := d.queue.Enqueue(ctx, PendingQueueKey, job); err != nil {
				log.Printf("[dispatch] re-enqueue %s failed: %v", job, err)
			} else {
				log.Printf("[dispatch] job %s retried (attempt=%d): %v", job, attempt, procErr)
			}
		} else {
			log.Printf("[dispatch] job %s failed after %d attempts: %v", job, attempt, procErr)
			_ = d.attempts.Reset(ctx, job)
		}
	}

	if err := d.queue.Ack(ctx, ProcessingQueueKey, job); err != nil {
		log.Printf("[dispatch] ack failed for %s: %v", job, err)
	}
	return created, procErr
}

// Reclaim returns expired reservations to the pending list.
func (d *AnnouncementDispatcher) Reclaim(ctx context.Context, now time.Time) ([]string, error) {
	return d.queue.RequeueExpired(ctx, ProcessingQueueKey, PendingQueueKey, now)
}
