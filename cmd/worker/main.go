package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"ticketaps/core"
)

func main() {
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "worker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	queue := core.NewRedisQueue(redisClient)
	dispatcher := core.NewAnnouncementDispatcher(
		core.NewPgAnnouncementRepository(db),
		queue,
		core.NewRedisAttemptCounter(redisClient),
	)
	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := core.NewWorkerID()
	hostname, _ := os.Hostname()
	log.Printf("worker started. id=%s concurrency=%d queue=%s", workerID, concurrency, core.PendingQueueKey)

	visibility := core.DefaultVisibilityTimeout
	reclaimInterval := 15 * time.Second

	state := core.NewHeartbeatState(workerID, hostname, concurrency)
	go state.Start(ctx, redisClient)

	// requeue expired in-flight jobs periodically
	go func() {
		ticker := time.NewTicker(reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				jobs, err := dispatcher.Reclaim(ctx, now)
				if err != nil {
					log.Printf("[reclaimer] requeue expired error: %v", err)
				} else if len(jobs) > 0 {
					log.Printf("[reclaimer] requeued %d expired jobs", len(jobs))
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for {
				job, err := queue.Reserve(ctx, core.PendingQueueKey, core.ProcessingQueueKey, visibility)
				if err != nil {
					if errors.Is(err, redis.Nil) {
						// Queue is empty, wait before retrying to avoid CPU spinning
						select {
						case <-ctx.Done():
							return
						case <-time.After(200 * time.Millisecond):
							continue
						}
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					log.Printf("[worker %d] dequeue error: %v", slot, err)
					time.Sleep(time.Second)
					continue
				}

				state.JobStarted(job)
				created, procErr := dispatcher.Handle(ctx, job)
				if procErr == nil {
					log.Printf("[worker %d] announcement %s dispatched (%d new receipts)", slot, job, created)
				}
				state.JobFinished(job, created, procErr)
			}
		}(i + 1)
	}

	wg.Wait()
	log.Printf("worker %s stopped", workerID)
}
