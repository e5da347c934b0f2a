// Package asyncmanager runs background tasks with a bounded level of
// parallelism and delivers their results on a single main thread.
//
// Tasks are submitted to a FIFO queue. At most maxParallel of them run at
// once on a goroutine worker pool; whenever a slot frees up the next pending
// task starts. Success and failure callbacks never run on a worker: they are
// posted to a Dispatcher, by default the process-wide DefaultMainThread.
//
// # Quick Start
//
// Configure the global manager at application startup:
//
//	asyncmanager.Configure(2) // 2 tasks in parallel
//	defer asyncmanager.Shutdown()
//
// Submit work with callbacks:
//
//	handle, err := asyncmanager.Go(
//		func(ctx context.Context) (string, error) {
//			return fetch(ctx)
//		},
//		func(body string) { render(body) },
//		func(err error) { showError(err) },
//	)
//
// # Cancellation and Owners
//
// Every task carries a CancellationFlag. Cancelling before the task starts
// makes it fail fast without running its body; cancelling afterwards
// suppresses its callbacks. A task can also be tied to any CancellationSource
// (a context, or a core.Owner): once the source fires the task behaves as if
// cancelled.
//
// A core.Owner models a component with a lifecycle. NewForOwner creates a
// Manager that shuts itself down when its owner is destroyed:
//
//	screen := core.NewOwner("settings")
//	m := asyncmanager.NewForOwner(screen, 2)
//	core.Submit(m.Scheduler(), core.NewVoidTask(save).WithOwner(screen))
//	...
//	screen.Destroy() // cancels pending and running tasks
//
// # Deadlines
//
// Tasks run under a deadline, 30 seconds unless configured otherwise. A task
// that overruns fails with core.ErrTimedOut and frees its slot; its body is
// abandoned and its context cancelled.
//
// # Delayed Tasks
//
// SubmitAfter holds a task until its delay has elapsed and then queues it
// like Submit. Remove and Shutdown still reach it while it waits.
//
// # Configuration
//
// ConfigureFromEnv reads ASYNC_* variables (optionally from .env files) into
// a Config and installs the global manager from it. See Config for the
// variables and defaults.
package asyncmanager
