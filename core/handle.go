package core

import (
	"context"
	"weak"
)

// TaskHandle lets the submitter cancel or dequeue a task without owning it.
// The handle keeps only a weak reference: once the scheduler has dropped a
// finished task it can be garbage collected and Cancel becomes a no-op.
type TaskHandle[T any] struct {
	id        TaskID
	task      weak.Pointer[Task[T]]
	done      <-chan struct{}
	scheduler *Scheduler
}

func newTaskHandle[T any](s *Scheduler, t *Task[T]) *TaskHandle[T] {
	return &TaskHandle[T]{
		id:        t.id,
		task:      weak.Make(t),
		done:      t.done,
		scheduler: s,
	}
}

// ID returns the identity of the task.
func (h *TaskHandle[T]) ID() TaskID { return h.id }

// Cancel cancels the task if it is still reachable.
func (h *TaskHandle[T]) Cancel() {
	if t := h.task.Value(); t != nil {
		t.Cancel()
	}
}

// Remove strikes the task from its scheduler's pending queue or delay heap.
// It reports whether the task was still waiting; false once it started or finished.
func (h *TaskHandle[T]) Remove() bool {
	return h.scheduler.Remove(h.id)
}

// Done is closed when the task reaches a terminal state.
func (h *TaskHandle[T]) Done() <-chan struct{} { return h.done }

// Wait blocks until the task finishes or ctx is done.
func (h *TaskHandle[T]) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the task state. ok is false when the task has already been
// collected, which only happens after it finished.
func (h *TaskHandle[T]) State() (state TaskState, ok bool) {
	if t := h.task.Value(); t != nil {
		return t.State(), true
	}
	return 0, false
}
