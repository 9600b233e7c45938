package core

import "time"

// Redis keys and timings for the announcement dispatch queue.
const (
	PendingQueueKey    = "pending_announcements"
	ProcessingQueueKey = "processing_announcements"
	// DefaultVisibilityTimeout is how long a reserved job stays hidden before it can be reclaimed.
	DefaultVisibilityTimeout = 60 * time.Second
	// MaxDispatchAttempts bounds retries of a failing dispatch job.
	MaxDispatchAttempts = 3
	dispatchAttemptsKey = "dispatch:attempts"
)
