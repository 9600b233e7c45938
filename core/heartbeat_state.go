package core

import (
	"context"
	"os"
	"sync"
	"time"
)

// HeartbeatState aggregates one worker process's counters for its heartbeat.
type HeartbeatState struct {
	mu       sync.Mutex
	hb       WorkerHeartbeat
	running  map[string]time.Time
	interval time.Duration
}

func NewHeartbeatState(workerID, hostname string, concurrency int) *HeartbeatState {
	now := time.Now()
	return &HeartbeatState{
		hb: WorkerHeartbeat{
			WorkerID:    workerID,
			Hostname:    hostname,
			PID:         os.Getpid(),
			Concurrency: concurrency,
			Status:      "starting",
			StartedAt:   now,
			UpdatedAt:   now,
			RunningJobs: []string{},
		},
		running:  make(map[string]time.Time),
		interval: 5 * time.Second,
	}
}

// Start publishes the heartbeat immediately and then every interval until ctx is done.
func (s *HeartbeatState) Start(ctx context.Context, client RedisClientRaw) {
	s.flush(ctx, client)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx, client)
		}
	}
}

func (s *HeartbeatState) JobStarted(job string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hb.Status = "busy"
	s.running[job] = time.Now()
	s.updateRunningFieldsLocked()
}

// JobFinished records the outcome of one dispatch job.
func (s *HeartbeatState) JobFinished(job string, receipts int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, job)
	s.hb.ProcessedTotal++
	s.hb.ReceiptsTotal += receipts
	if err != nil {
		s.hb.FailedTotal++
		s.hb.LastError = err.Error()
	}
	if len(s.running) == 0 {
		s.hb.Status = "idle"
	}
	s.updateRunningFieldsLocked()
}

// Snapshot returns a copy of the current heartbeat.
func (s *HeartbeatState) Snapshot() WorkerHeartbeat {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := s.hb
	hb.RunningJobs = append([]string(nil), s.hb.RunningJobs...)
	return hb
}

func (s *HeartbeatState) updateRunningFieldsLocked() {
	s.hb.RunningCount = len(s.running)
	s.hb.RunningJobs = s.hb.RunningJobs[:0]
	for job := range s.running {
		if len(s.hb.RunningJobs) >= 3 {
			break
		}
		s.hb.RunningJobs = append(s.hb.RunningJobs, job)
	}
	if s.hb.RunningCount == 0 {
		s.hb.CurrentJob = ""
	} else {
		s.hb.CurrentJob = s.hb.RunningJobs[0]
	}
}

func (s *HeartbeatState) flush(ctx context.Context, client RedisClientRaw) {
	s.mu.Lock()
	s.hb.UptimeSeconds = int64(time.Since(s.hb.StartedAt).Seconds())
	s.hb.UpdateRuntimeStats()
	hbCopy := s.hb
	hbCopy.RunningJobs = append([]string(nil), s.hb.RunningJobs...)
	s.mu.Unlock()
	_ = SaveHeartbeat(ctx, client, hbCopy)
}
