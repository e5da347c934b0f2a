package core

import "context"

// =============================================================================
// Result delivery
// =============================================================================
//
// The body runs on a pool worker; its reply runs on the Dispatcher. The
// cancellation flag and the scheduler context are checked twice: before
// posting, and again on the dispatcher right before the callback, so a cancel
// or a scheduler shutdown that lands while the reply is queued still
// suppresses it.

// notifySuccess posts onSuccess(result) unless the task was cancelled or
// scope is done.
func (t *Task[T]) notifySuccess(scope context.Context, result T, d Dispatcher) {
	if t.onSuccess == nil || t.replySuppressed(scope) {
		return
	}
	onSuccess := t.onSuccess
	postReply(d, func() {
		if t.replySuppressed(scope) {
			return
		}
		onSuccess(result)
	})
}

// notifyFailure posts onFailure(err) unless the task was cancelled or scope
// is done.
func (t *Task[T]) notifyFailure(scope context.Context, err error, d Dispatcher) {
	if t.onFailure == nil || t.replySuppressed(scope) {
		return
	}
	onFailure := t.onFailure
	postReply(d, func() {
		if t.replySuppressed(scope) {
			return
		}
		onFailure(err)
	})
}

func (t *Task[T]) replySuppressed(scope context.Context) bool {
	return t.IsCancelled() || scope.Err() != nil
}

func postReply(d Dispatcher, reply func()) {
	if d == nil {
		// No privileged thread to hand over to; never run the reply on the worker.
		return
	}
	d.Post(reply)
}
