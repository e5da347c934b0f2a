package core

import "time"

// Outcome labels used by history records and Metrics.RecordTaskDuration.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeTimedOut  = "timed_out"
	OutcomePanicked  = "panicked"
)

// TaskExecutionRecord captures a task that left its scheduler slot.
type TaskExecutionRecord struct {
	TaskID        TaskID
	Name          string
	SchedulerName string
	Outcome       string
	Err           string
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
}

// SchedulerStats represents runtime observability state for a Scheduler.
type SchedulerStats struct {
	Name         string
	State        LifecycleState
	MaxParallel  int
	Pending      int
	Delayed      int
	InFlight     int
	Submitted    int64
	Completed    int64
	Rejected     int64
	LastTaskName string
	LastTaskAt   time.Time
}

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	ID      string
	Workers int
	Queued  int
	Active  int
	Running bool
}
