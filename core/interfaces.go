package core

import (
	"context"
	"time"
)

// =============================================================================
// Collaborators: worker pool and privileged-thread dispatcher
// =============================================================================

// WorkerPool runs jobs off the privileged thread. Post returns false when the
// pool no longer accepts work.
type WorkerPool interface {
	Post(job Job) bool
	WorkerCount() int
}

// Dispatcher posts a callback onto the privileged (UI) thread.
// Post is fire-and-forget and must not run the callback inline on the caller.
type Dispatcher interface {
	Post(callback func())
}

// DispatcherFunc adapts a framework's "run on UI thread" function.
type DispatcherFunc func(callback func())

// Post calls f(callback).
func (f DispatcherFunc) Post(callback func()) {
	f(callback)
}

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body or a callback panics.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The scheduler context
	// - source: The scheduler, pool or main thread name
	// - workerID: The ID of the worker (-1 when not running on a pool worker)
	// - panicInfo: The recovered panic value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, source string, workerID int, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler reports panics through a Logger.
type LoggingPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, source string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("source", source),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects scheduler metrics. Methods must be non-blocking and fast.
type Metrics interface {
	// RecordTaskDuration records how long a task occupied a slot and how it ended
	// (see the Outcome* constants).
	RecordTaskDuration(schedulerName string, outcome string, duration time.Duration)

	// RecordTaskPanic records that a task body panicked.
	RecordTaskPanic(schedulerName string, panicInfo any)

	// RecordQueueDepth records the current pending queue depth.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordInFlight records the number of occupied slots.
	RecordInFlight(schedulerName string, inFlight int)

	// RecordTaskRejected records that a submit was refused.
	RecordTaskRejected(schedulerName string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(schedulerName string, outcome string, duration time.Duration) {
}
func (m *NilMetrics) RecordTaskPanic(schedulerName string, panicInfo any)     {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)        {}
func (m *NilMetrics) RecordInFlight(schedulerName string, inFlight int)       {}
func (m *NilMetrics) RecordTaskRejected(schedulerName string, reason string) {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when a task is rejected. This happens when:
// - The scheduler is shut down
// - A bounded pending queue stayed full for every retry
// - The same task is submitted twice
type RejectedTaskHandler interface {
	HandleRejectedTask(schedulerName string, taskID TaskID, reason string)
}

// LoggingRejectedTaskHandler logs rejected tasks at warn level.
type LoggingRejectedTaskHandler struct {
	Logger Logger
}

func (h *LoggingRejectedTaskHandler) HandleRejectedTask(schedulerName string, taskID TaskID, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected",
		F("scheduler", schedulerName),
		F("task", taskID.String()),
		F("reason", reason),
	)
}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// Zero values select the documented defaults.
type SchedulerConfig struct {
	// Name labels logs, metrics and history records. Defaults to "scheduler".
	Name string

	// DefaultDeadline applies to tasks that set none. 0 selects
	// DefaultTaskDeadline; a negative value disables the default deadline.
	DefaultDeadline time.Duration

	// MaxPending bounds the pending queue. 0 leaves it unbounded.
	MaxPending int

	// SubmitRetry governs retries while a bounded queue is full.
	// Nil selects DefaultRetryPolicy.
	SubmitRetry *RetryPolicy

	// ParallelismCeiling is the upper clamp for maxParallel.
	// 0 selects runtime.NumCPU().
	ParallelismCeiling int

	// HistoryCapacity is the number of execution records kept for RecentTasks.
	HistoryCapacity int

	// Logger defaults to NoOpLogger.
	Logger Logger

	// PanicHandler defaults to a LoggingPanicHandler on Logger.
	PanicHandler PanicHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler defaults to a LoggingRejectedTaskHandler on Logger.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	logger := NewNoOpLogger()
	retry := DefaultRetryPolicy()
	return &SchedulerConfig{
		Name:                "scheduler",
		DefaultDeadline:     DefaultTaskDeadline,
		SubmitRetry:         &retry,
		HistoryCapacity:     defaultTaskHistoryCapacity,
		Logger:              logger,
		PanicHandler:        &LoggingPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &LoggingRejectedTaskHandler{Logger: logger},
	}
}

// withDefaults fills every unset field.
func (c *SchedulerConfig) withDefaults() SchedulerConfig {
	out := SchedulerConfig{}
	if c != nil {
		out = *c
	}
	if out.Name == "" {
		out.Name = "scheduler"
	}
	if out.DefaultDeadline == 0 {
		out.DefaultDeadline = DefaultTaskDeadline
	}
	if out.MaxPending < 0 {
		out.MaxPending = 0
	}
	if out.SubmitRetry == nil {
		retry := DefaultRetryPolicy()
		out.SubmitRetry = &retry
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = defaultTaskHistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = NewNoOpLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &LoggingPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &LoggingRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
