package asyncmanager

import (
	"context"
	"sync"

	"github.com/Swind/go-async-manager/core"
)

// Manager ties a Scheduler to the worker pool it launches on and the
// dispatcher its callbacks run on.
type Manager struct {
	pool       *GoroutineWorkerPool
	scheduler  *core.Scheduler
	dispatcher core.Dispatcher
	logger     core.Logger
	stopOnce   sync.Once
	stopped    chan struct{}
}

// New creates a running Manager with maxParallel slots. maxParallel is
// clamped to [1, ceiling]; see WithParallelismCeiling.
func New(maxParallel int, opts ...Option) *Manager {
	o := applyOptions(opts)
	n := core.ClampParallelism(maxParallel, o.ceiling)

	pool := NewGoroutineWorkerPoolWithHandler(o.name+"-pool", n, o.panicHandler)
	pool.Start(context.Background())

	return &Manager{
		pool:       pool,
		scheduler:  core.NewScheduler(pool, o.dispatcher, n, o.schedulerConfig()),
		dispatcher: o.dispatcher,
		logger:     o.logger,
		stopped:    make(chan struct{}),
	}
}

// NewForOwner creates a Manager that shuts itself down when owner is destroyed.
func NewForOwner(owner core.Lifecycle, maxParallel int, opts ...Option) *Manager {
	m := New(maxParallel, opts...)
	m.scheduler.BindOwner(owner)
	go func() {
		_ = m.scheduler.WaitShutdown(context.Background())
		m.stopPool()
	}()
	return m
}

func (m *Manager) Scheduler() *core.Scheduler { return m.scheduler }

func (m *Manager) Pool() *GoroutineWorkerPool { return m.pool }

func (m *Manager) Dispatcher() core.Dispatcher { return m.dispatcher }

// Stats returns the scheduler's counters.
func (m *Manager) Stats() core.SchedulerStats { return m.scheduler.Stats() }

// Remove drops the pending task with id. See core.Scheduler.Remove.
func (m *Manager) Remove(id core.TaskID) bool { return m.scheduler.Remove(id) }

// Shutdown cancels all work and stops the pool in the background.
// It does not block, so it is safe to call from a callback.
func (m *Manager) Shutdown() {
	m.scheduler.Shutdown()
	go m.stopPool()
}

// ShutdownAndWait cancels all work and waits for the workers to exit.
func (m *Manager) ShutdownAndWait(ctx context.Context) error {
	m.scheduler.Shutdown()
	go m.stopPool()

	select {
	case <-m.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopPool waits for the in-flight tasks to settle and then joins the workers.
func (m *Manager) stopPool() {
	m.stopOnce.Do(func() {
		if err := m.scheduler.WaitIdle(context.Background()); err != nil {
			m.logger.Warn("waiting for scheduler to idle", core.F("error", err))
		}
		m.pool.Stop()
		m.logger.Debug("worker pool stopped", core.F("pool", m.pool.ID()))
		close(m.stopped)
	})
}
