package asyncmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-async-manager/core"
)

// =============================================================================
// Global Manager Helper (Singleton)
// =============================================================================

var (
	globalManager atomic.Pointer[Manager]
	globalMu      sync.Mutex

	defaultMainThread = sync.OnceValue(func() *core.MainThread {
		m := core.NewMainThread()
		m.SetName("main")
		return m
	})
)

// DefaultMainThread returns the process-wide main thread that callbacks run
// on unless WithDispatcher says otherwise. It is created on first use and
// never stopped.
func DefaultMainThread() *core.MainThread {
	return defaultMainThread()
}

// Configure installs a new global Manager with maxParallel slots. A previously
// configured Manager is shut down first, cancelling its pending and running
// tasks.
func Configure(maxParallel int, opts ...Option) *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if prev := globalManager.Swap(nil); prev != nil {
		prev.Shutdown()
	}
	m := New(maxParallel, opts...)
	globalManager.Store(m)
	return m
}

// EnsureConfigured returns the global Manager, creating it with maxParallel
// slots if none is configured. Unlike Configure it never replaces an existing
// instance.
func EnsureConfigured(maxParallel int, opts ...Option) *Manager {
	if m := globalManager.Load(); m != nil {
		return m
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if m := globalManager.Load(); m != nil {
		return m
	}
	m := New(maxParallel, opts...)
	globalManager.Store(m)
	return m
}

// ConfigureFromEnv loads Config from the environment (and optional .env
// files) and installs the resulting global Manager.
func ConfigureFromEnv(files ...string) (*Manager, error) {
	cfg, err := LoadConfig(files...)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return Configure(cfg.MaxParallel, opts...), nil
}

// Default returns the global Manager or core.ErrNotConfigured.
func Default() (*Manager, error) {
	if m := globalManager.Load(); m != nil {
		return m, nil
	}
	return nil, core.ErrNotConfigured
}

// IsConfigured reports whether a global Manager is installed.
func IsConfigured() bool {
	return globalManager.Load() != nil
}

// Shutdown shuts the global Manager down and uninstalls it.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if m := globalManager.Swap(nil); m != nil {
		m.Shutdown()
	}
}

// Submit queues t on the global Manager.
func Submit[T any](t *core.Task[T]) (*core.TaskHandle[T], error) {
	m, err := Default()
	if err != nil {
		return nil, err
	}
	return core.Submit(m.Scheduler(), t)
}

// SubmitAfter queues t on the global Manager once delay has elapsed.
func SubmitAfter[T any](t *core.Task[T], delay time.Duration) (*core.TaskHandle[T], error) {
	m, err := Default()
	if err != nil {
		return nil, err
	}
	return core.SubmitAfter(m.Scheduler(), t, delay)
}

// Go builds a task from body and the optional callbacks and submits it to
// the global Manager.
func Go[T any](body func(ctx context.Context) (T, error), onSuccess func(T), onFailure func(error)) (*core.TaskHandle[T], error) {
	return Submit(newTask(body, onSuccess, onFailure))
}

// GoWithOwner is Go with the task cancelled once owner signals.
func GoWithOwner[T any](owner core.CancellationSource, body func(ctx context.Context) (T, error), onSuccess func(T), onFailure func(error)) (*core.TaskHandle[T], error) {
	t := newTask(body, onSuccess, onFailure)
	if owner != nil {
		t.WithOwner(owner)
	}
	return Submit(t)
}

// Await submits t to the global Manager and blocks until it finishes.
func Await[T any](ctx context.Context, t *core.Task[T]) (T, error) {
	m, err := Default()
	if err != nil {
		var zero T
		return zero, err
	}
	return core.Await(ctx, m.Scheduler(), t)
}

// Remove drops a pending task from the global Manager.
func Remove(id core.TaskID) (bool, error) {
	m, err := Default()
	if err != nil {
		return false, err
	}
	return m.Remove(id), nil
}

func newTask[T any](body func(ctx context.Context) (T, error), onSuccess func(T), onFailure func(error)) *core.Task[T] {
	t := core.NewTask(body)
	if onSuccess != nil {
		t.OnSuccess(onSuccess)
	}
	if onFailure != nil {
		t.OnFailure(onFailure)
	}
	return t
}
