package asyncmanager

import (
	"context"

	"github.com/Swind/go-async-manager/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the asyncmanager package for most use cases.

// Task is a unit of background work producing a T.
type Task[T any] = core.Task[T]

// TaskHandle is the caller's reference to a submitted task.
type TaskHandle[T any] = core.TaskHandle[T]

// TaskID identifies a task.
type TaskID = core.TaskID

// TaskState is the lifecycle state of a task.
type TaskState = core.TaskState

// Scheduler admits tasks onto a worker pool.
type Scheduler = core.Scheduler

// Owner is a component whose destruction cancels its tasks.
type Owner = core.Owner

// Lifecycle is implemented by owners a Manager can bind to.
type Lifecycle = core.Lifecycle

// CancellationSource is anything with a Done channel, such as a context.
type CancellationSource = core.CancellationSource

// Dispatcher runs callbacks on the main thread.
type Dispatcher = core.Dispatcher

// MainThread is the default Dispatcher implementation.
type MainThread = core.MainThread

// Logger is the structured logger used by the manager.
type Logger = core.Logger

// Task state constants
const (
	TaskPending   = core.TaskPending
	TaskRunning   = core.TaskRunning
	TaskSucceeded = core.TaskSucceeded
	TaskFailed    = core.TaskFailed
	TaskCancelled = core.TaskCancelled
)

// Sentinel errors
var (
	ErrNotConfigured    = core.ErrNotConfigured
	ErrCancelled        = core.ErrCancelled
	ErrTimedOut         = core.ErrTimedOut
	ErrShutdown         = core.ErrShutdown
	ErrQueueFull        = core.ErrQueueFull
	ErrAlreadySubmitted = core.ErrAlreadySubmitted
	ErrAlreadyStarted   = core.ErrAlreadyStarted
	ErrNilBody          = core.ErrNilBody
)

// NewTask creates a task from body. Configure it with the builder methods
// before submitting.
func NewTask[T any](body func(ctx context.Context) (T, error)) *Task[T] {
	return core.NewTask(body)
}

// NewVoidTask creates a task whose body only reports an error.
func NewVoidTask(body func(ctx context.Context) error) *Task[struct{}] {
	return core.NewVoidTask(body)
}

// NewOwner creates a live Owner.
func NewOwner(name string) *Owner {
	return core.NewOwner(name)
}
