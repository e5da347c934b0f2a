package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a scheduler is used before it has been configured.
	ErrNotConfigured = errors.New("asyncmanager: scheduler is not configured")

	// ErrCancelled is returned by Task.Run when the task was cancelled before it started.
	// It never reaches a failure callback.
	ErrCancelled = errors.New("asyncmanager: task cancelled")

	// ErrTimedOut is delivered to the failure callback when a task exceeds its deadline.
	ErrTimedOut = errors.New("asyncmanager: task deadline exceeded")

	// ErrShutdown is returned when submitting to a scheduler that has been shut down.
	ErrShutdown = errors.New("asyncmanager: scheduler is shut down")

	// ErrQueueFull is returned when a bounded pending queue stayed full for every submit retry.
	ErrQueueFull = errors.New("asyncmanager: pending queue is full")

	// ErrAlreadySubmitted is returned when the same task is submitted twice.
	ErrAlreadySubmitted = errors.New("asyncmanager: task already submitted")

	// ErrAlreadyStarted is returned when submitting a task that Task.Run already consumed.
	ErrAlreadyStarted = errors.New("asyncmanager: task already started")

	// ErrNilBody is returned when a task without a body is submitted.
	ErrNilBody = errors.New("asyncmanager: task body is nil")
)

// PanicError carries a panic recovered from a task body.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("asyncmanager: task panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimedOut)
}

func isPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
