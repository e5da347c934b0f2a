package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultTaskDeadline is applied to tasks that do not set their own deadline.
const DefaultTaskDeadline = 30 * time.Second

// TaskID identifies a submitted task. Identity, not equality of bodies,
// is what Scheduler.Remove and TaskHandle use.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// Job is the closure the worker pool executes.
type Job func(ctx context.Context)

// =============================================================================
// TaskState
// =============================================================================

type TaskState int32

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("TaskState(%d)", int32(s))
	}
}

// IsTerminal reports whether no further transition can happen.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskCancelled
}

// =============================================================================
// Task
// =============================================================================

// Task is a unit of deferred work with optional completion callbacks,
// an optional owner whose teardown cancels it, and an optional deadline.
//
// Callbacks never run on the goroutine that executes the body; the scheduler
// posts them to its Dispatcher. Configure a task with the With*/On* methods
// before submitting it. Calling them after submission panics.
type Task[T any] struct {
	id   TaskID
	name string
	body func(ctx context.Context) (T, error)

	onSuccess func(T)
	onFailure func(error)

	flag  CancellationFlag
	owner CancellationSource

	deadline    time.Duration
	deadlineSet bool

	state     atomic.Int32
	submitted atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once

	mu        sync.Mutex
	runCancel context.CancelFunc
	result    T
	err       error
}

// NewTask creates a pending task around body.
func NewTask[T any](body func(ctx context.Context) (T, error)) *Task[T] {
	return &Task[T]{
		id:   GenerateTaskID(),
		body: body,
		done: make(chan struct{}),
	}
}

// NewVoidTask creates a task for a body that produces no value.
func NewVoidTask(body func(ctx context.Context) error) *Task[struct{}] {
	if body == nil {
		return NewTask[struct{}](nil)
	}
	t := NewTask(func(ctx context.Context) (struct{}, error) {
		return struct{}{}, body(ctx)
	})
	t.name = resolveTaskName(body, "")
	return t
}

func (t *Task[T]) mustBeUnsubmitted(op string) {
	if t.submitted.Load() {
		panic(fmt.Sprintf("Task.%s called on submitted task %s", op, t.id))
	}
}

// OnSuccess registers the callback that receives the body's result.
func (t *Task[T]) OnSuccess(fn func(T)) *Task[T] {
	t.mustBeUnsubmitted("OnSuccess")
	t.onSuccess = fn
	return t
}

// OnFailure registers the callback that receives body errors, panics and timeouts.
func (t *Task[T]) OnFailure(fn func(error)) *Task[T] {
	t.mustBeUnsubmitted("OnFailure")
	t.onFailure = fn
	return t
}

// WithOwner binds the task to an external cancellation source.
func (t *Task[T]) WithOwner(src CancellationSource) *Task[T] {
	t.mustBeUnsubmitted("WithOwner")
	t.owner = src
	return t
}

// WithDeadline overrides the scheduler's default deadline. A non-positive
// duration disables the deadline.
func (t *Task[T]) WithDeadline(d time.Duration) *Task[T] {
	t.mustBeUnsubmitted("WithDeadline")
	t.deadline = d
	t.deadlineSet = true
	return t
}

// WithoutDeadline lets the task run for as long as its body takes.
func (t *Task[T]) WithoutDeadline() *Task[T] {
	return t.WithDeadline(0)
}

// WithName sets the display name used in logs, metrics and history.
func (t *Task[T]) WithName(name string) *Task[T] {
	t.mustBeUnsubmitted("WithName")
	t.name = name
	return t
}

func (t *Task[T]) ID() TaskID { return t.id }

// Name returns the explicit name, or the body's function name.
func (t *Task[T]) Name() string {
	return resolveTaskName(t.body, t.name)
}

func (t *Task[T]) State() TaskState {
	return TaskState(t.state.Load())
}

// Done is closed once the task reaches a terminal state.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome recorded when the task finished.
// Before that it returns the zero value and a nil error.
func (t *Task[T]) Result() (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// IsCancelled reports whether the task was cancelled directly or through its owner.
func (t *Task[T]) IsCancelled() bool {
	if t.flag.IsSet() {
		return true
	}
	if sourceFired(t.owner) {
		t.flag.Set()
		return true
	}
	return false
}

// Cancel latches the cancellation flag. Work that has already started keeps
// running; the context it was given is cancelled and its callbacks are suppressed.
func (t *Task[T]) Cancel() {
	t.flag.Set()

	t.mu.Lock()
	cancel := t.runCancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes the body on the calling goroutine. It fails with ErrCancelled
// if the task was cancelled before it started; it does not look at the flag
// again once the body is running. A panicking body yields a *PanicError.
// Run consumes the task: it is left in TaskRunning, and submitting it
// afterwards fails with ErrAlreadyStarted. Only a scheduler records the
// terminal state and delivers callbacks.
func (t *Task[T]) Run(ctx context.Context) (result T, err error) {
	if t.IsCancelled() {
		return result, ErrCancelled
	}
	if t.body == nil {
		return result, ErrNilBody
	}
	if !t.state.CompareAndSwap(int32(TaskPending), int32(TaskRunning)) {
		return result, fmt.Errorf("asyncmanager: task %s already %s", t.id, t.State())
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return t.body(ctx)
}

type taskOutcome[T any] struct {
	value T
	err   error
}

// execute runs the task for the scheduler: cancellation check, optional
// deadline race, terminal transition and callback delivery. Callbacks are
// dropped once parent is done, including replies already queued on d.
func (t *Task[T]) execute(parent context.Context, deadline time.Duration, d Dispatcher) (TaskState, error) {
	var zero T
	if t.IsCancelled() {
		return t.complete(parent, zero, ErrCancelled, d)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	t.mu.Lock()
	t.runCancel = cancel
	t.mu.Unlock()

	if deadline <= 0 {
		v, err := t.Run(ctx)
		return t.complete(parent, v, err, d)
	}

	ch := make(chan taskOutcome[T], 1)
	go func() {
		v, err := t.Run(ctx)
		ch <- taskOutcome[T]{value: v, err: err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case o := <-ch:
		return t.complete(parent, o.value, o.err, d)
	case <-timer.C:
		// The body keeps running; its result is dropped.
		return t.complete(parent, zero, fmt.Errorf("%w after %s", ErrTimedOut, deadline), d)
	}
}

func (t *Task[T]) complete(scope context.Context, v T, err error, d Dispatcher) (TaskState, error) {
	var zero T
	switch {
	case t.IsCancelled() || errors.Is(err, ErrCancelled):
		t.finish(TaskCancelled, zero, ErrCancelled)
		return TaskCancelled, ErrCancelled
	case err != nil:
		if !t.finish(TaskFailed, zero, err) {
			return t.State(), err
		}
		t.notifyFailure(scope, err, d)
		return TaskFailed, err
	default:
		if !t.finish(TaskSucceeded, v, nil) {
			return t.State(), nil
		}
		t.notifySuccess(scope, v, d)
		return TaskSucceeded, nil
	}
}

// finish moves the task into a terminal state exactly once.
func (t *Task[T]) finish(state TaskState, v T, err error) bool {
	for {
		cur := TaskState(t.state.Load())
		if cur.IsTerminal() {
			return false
		}
		if t.state.CompareAndSwap(int32(cur), int32(state)) {
			break
		}
	}

	t.mu.Lock()
	t.result = v
	t.err = err
	t.runCancel = nil
	t.mu.Unlock()

	t.doneOnce.Do(func() { close(t.done) })
	return true
}

// =============================================================================
// runnable: the type-erased view the scheduler keeps of a Task[T]
// =============================================================================

type runnable interface {
	ID() TaskID
	Name() string
	State() TaskState
	IsCancelled() bool
	Cancel()

	markSubmitted() bool
	unmarkSubmitted()
	hasBody() bool
	hasFailureHandler() bool
	deadlineOr(def time.Duration) time.Duration
	execute(ctx context.Context, deadline time.Duration, d Dispatcher) (TaskState, error)
	discard()
}

func (t *Task[T]) markSubmitted() bool     { return t.submitted.CompareAndSwap(false, true) }
func (t *Task[T]) unmarkSubmitted()        { t.submitted.Store(false) }
func (t *Task[T]) hasBody() bool           { return t.body != nil }
func (t *Task[T]) hasFailureHandler() bool { return t.onFailure != nil }

func (t *Task[T]) deadlineOr(def time.Duration) time.Duration {
	if t.deadlineSet {
		return t.deadline
	}
	return def
}

// discard cancels a task that will never be launched.
func (t *Task[T]) discard() {
	var zero T
	t.flag.Set()
	t.finish(TaskCancelled, zero, ErrCancelled)
}
