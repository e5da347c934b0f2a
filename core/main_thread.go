package core

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// MainThread is a Dispatcher backed by one dedicated goroutine locked to its
// OS thread. It stands in for a GUI event loop: every posted callback runs
// there, one at a time, in post order.
//
// Post never blocks: callbacks go into an unbounded queue that only the loop
// consumes.
type MainThread struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	stopped chan struct{}
	once    sync.Once
	closed  atomic.Bool

	name         string
	panicHandler PanicHandler
	executed     atomic.Int64
}

var _ Dispatcher = (*MainThread)(nil)

// NewMainThread creates and starts a MainThread.
func NewMainThread() *MainThread {
	ctx, cancel := context.WithCancel(context.Background())
	m := &MainThread{
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		stopped:      make(chan struct{}),
		name:         "main-thread",
		panicHandler: &LoggingPanicHandler{},
	}

	go m.runLoop()

	return m
}

// Name returns the name used when reporting callback panics.
func (m *MainThread) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *MainThread) SetName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
}

// SetPanicHandler replaces the handler for panicking callbacks.
func (m *MainThread) SetPanicHandler(h PanicHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicHandler = h
}

// Executed returns how many callbacks have run.
func (m *MainThread) Executed() int64 {
	return m.executed.Load()
}

// Post queues callback for the loop. Callbacks posted after Stop are dropped.
func (m *MainThread) Post(callback func()) {
	if callback == nil || m.closed.Load() {
		return
	}

	m.mu.Lock()
	m.pending = append(m.pending, callback)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// IsClosed returns true once Stop has been called.
func (m *MainThread) IsClosed() bool {
	return m.closed.Load()
}

// Stop terminates the loop after the callback currently running, if any.
// Queued callbacks are dropped.
func (m *MainThread) Stop() {
	m.once.Do(func() {
		m.closed.Store(true)
		m.cancel()
		<-m.stopped
	})
}

// WaitIdle blocks until every callback posted before the call has run.
func (m *MainThread) WaitIdle(ctx context.Context) error {
	if m.IsClosed() {
		return errors.New("main thread is stopped")
	}

	done := make(chan struct{})
	m.Post(func() { close(done) })

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return errors.New("main thread stopped during WaitIdle")
	}
}

// runLoop is the core of this dispatcher, it occupies a dedicated OS thread
func (m *MainThread) runLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.stopped)

	for {
		batch := m.takePending()
		for _, cb := range batch {
			if m.ctx.Err() != nil {
				return
			}
			m.execute(cb)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-m.wake:
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *MainThread) takePending() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.pending
	m.pending = nil
	return batch
}

func (m *MainThread) execute(cb func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.mu.Lock()
			h, name := m.panicHandler, m.name
			m.mu.Unlock()
			h.HandlePanic(m.ctx, name, -1, rec, debug.Stack())
		}
	}()
	cb()
	m.executed.Add(1)
}
