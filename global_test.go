package asyncmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Swind/go-async-manager/core"
)

func resetGlobal(t *testing.T) {
	t.Helper()
	Shutdown()
	t.Cleanup(Shutdown)
}

// messageLog records "message scheduler" pairs for ordering checks.
type messageLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *messageLog) record(msg string, fields []core.Field) {
	entry := msg
	for _, f := range fields {
		if f.Key == "scheduler" {
			entry = fmt.Sprintf("%s %v", msg, f.Value)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *messageLog) Debug(msg string, fields ...core.Field) {}
func (l *messageLog) Info(msg string, fields ...core.Field)  { l.record(msg, fields) }
func (l *messageLog) Warn(msg string, fields ...core.Field)  { l.record(msg, fields) }
func (l *messageLog) Error(msg string, fields ...core.Field) { l.record(msg, fields) }

func (l *messageLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func waitDefaultMainThreadIdle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, DefaultMainThread().WaitIdle(ctx))
}

// TestGlobal_NotConfigured verifies every helper reports ErrNotConfigured
func TestGlobal_NotConfigured(t *testing.T) {
	resetGlobal(t)

	assert.False(t, IsConfigured())
	_, err := Default()
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = Go(func(ctx context.Context) (int, error) { return 1, nil }, nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = SubmitAfter(NewVoidTask(func(ctx context.Context) error { return nil }), time.Millisecond)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = Await(context.Background(), NewVoidTask(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrNotConfigured)

	removed, err := Remove(core.GenerateTaskID())
	assert.False(t, removed)
	assert.ErrorIs(t, err, ErrNotConfigured)

	assert.NotPanics(t, Shutdown)
}

// TestGlobal_GoDeliversOnMainThread verifies the convenience path end to end
// Given: A configured global manager using the default main thread
// When: Go is called with a success callback
// Then: The callback receives the result on the main thread
func TestGlobal_GoDeliversOnMainThread(t *testing.T) {
	// Arrange
	resetGlobal(t)
	Configure(2, WithParallelismCeiling(16))
	require.True(t, IsConfigured())

	var mainID atomic.Uint64
	DefaultMainThread().Post(func() { mainID.Store(goroutineID()) })
	waitDefaultMainThreadIdle(t)

	got := make(chan int, 1)
	var callbackID atomic.Uint64

	// Act
	_, err := Go(func(ctx context.Context) (int, error) { return 42, nil },
		func(v int) {
			callbackID.Store(goroutineID())
			got <- v
		}, nil)
	require.NoError(t, err)

	// Assert
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never delivered")
	}
	assert.Equal(t, mainID.Load(), callbackID.Load())
}

func TestGlobal_GoFailure(t *testing.T) {
	resetGlobal(t)
	Configure(1, WithParallelismCeiling(16))
	boom := errors.New("boom")
	failures := make(chan error, 1)

	_, err := Go(func(ctx context.Context) (struct{}, error) { return struct{}{}, boom }, nil,
		func(err error) { failures <- err })
	require.NoError(t, err)

	select {
	case got := <-failures:
		assert.ErrorIs(t, got, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("failure never delivered")
	}
}

// TestGlobal_ConfigureReplacesAndCancels verifies reconfiguration semantics
// Given: A global manager with a running task and a pending one
// When: Configure is called again
// Then: Both tasks end cancelled without callbacks and the new manager accepts work
func TestGlobal_ConfigureReplacesAndCancels(t *testing.T) {
	// Arrange
	resetGlobal(t)
	first := Configure(1, WithParallelismCeiling(16))

	started := make(chan struct{})
	release := make(chan struct{})
	var callbacks atomic.Int32
	running := NewVoidTask(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}).WithoutDeadline().
		OnSuccess(func(struct{}) { callbacks.Add(1) }).
		OnFailure(func(error) { callbacks.Add(1) })
	_, err := Submit(running)
	require.NoError(t, err)
	<-started
	pending := NewVoidTask(func(ctx context.Context) error { return nil }).
		OnSuccess(func(struct{}) { callbacks.Add(1) })
	_, err = Submit(pending)
	require.NoError(t, err)

	// Act
	second := Configure(2, WithParallelismCeiling(16))
	close(release)

	// Assert
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, first.ShutdownAndWait(ctx))
	waitDefaultMainThreadIdle(t)

	assert.Zero(t, callbacks.Load())
	assert.Equal(t, TaskCancelled, running.State())
	assert.Equal(t, TaskCancelled, pending.State())
	assert.True(t, first.Scheduler().IsClosed())

	m, err := Default()
	require.NoError(t, err)
	assert.Same(t, second, m)
	assert.Equal(t, 2, m.Scheduler().MaxParallel())
	v, err := Await(ctx, NewTask(func(ctx context.Context) (string, error) { return "ok", nil }))
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

// TestGlobal_ConfigureDropsQueuedReplies verifies reconfiguration silences finished tasks
// Given: A first-configuration task that finished while the main thread was busy
// When: Configure is called before the main thread reaches its reply
// Then: The reply is dropped once the main thread catches up
func TestGlobal_ConfigureDropsQueuedReplies(t *testing.T) {
	// Arrange
	resetGlobal(t)
	first := Configure(1, WithParallelismCeiling(16))

	hold := make(chan struct{})
	DefaultMainThread().Post(func() { <-hold })

	var callbacks atomic.Int32
	task := NewTask(func(ctx context.Context) (int, error) { return 1, nil }).
		OnSuccess(func(int) { callbacks.Add(1) })
	_, err := Submit(task)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, first.Scheduler().WaitIdle(ctx))
	require.Equal(t, TaskSucceeded, task.State())

	// Act
	Configure(1, WithParallelismCeiling(16))
	close(hold)

	// Assert
	waitDefaultMainThreadIdle(t)
	assert.Zero(t, callbacks.Load())
}

// TestGlobal_ConfigureTearsDownBeforeInstalling verifies reconfiguration order
// Given: A configured global manager
// When: Configure is called again
// Then: The previous scheduler shuts down before the new one is created
func TestGlobal_ConfigureTearsDownBeforeInstalling(t *testing.T) {
	// Arrange
	resetGlobal(t)
	log := &messageLog{}
	Configure(1, WithName("first"), WithLogger(log), WithParallelismCeiling(16))

	// Act
	Configure(1, WithName("second"), WithLogger(log), WithParallelismCeiling(16))

	// Assert
	assert.Equal(t, []string{
		"scheduler configured first",
		"scheduler shut down first",
		"scheduler configured second",
	}, log.snapshot())
}

// TestGlobal_EnsureConfiguredIsIdempotent verifies lazy init under contention
func TestGlobal_EnsureConfiguredIsIdempotent(t *testing.T) {
	resetGlobal(t)

	managers := make([]*Manager, 16)
	var g errgroup.Group
	for i := range managers {
		g.Go(func() error {
			managers[i] = EnsureConfigured(2, WithParallelismCeiling(16))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, m := range managers {
		assert.Same(t, managers[0], m)
	}
	m, err := Default()
	require.NoError(t, err)
	assert.Same(t, managers[0], m)
}

// TestGlobal_GoWithOwner verifies owner teardown suppresses callbacks
func TestGlobal_GoWithOwner(t *testing.T) {
	resetGlobal(t)
	Configure(1, WithParallelismCeiling(16))
	owner := NewOwner("screen")

	started := make(chan struct{})
	release := make(chan struct{})
	var callbacks atomic.Int32
	h, err := GoWithOwner(owner, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	}, func(int) { callbacks.Add(1) }, func(error) { callbacks.Add(1) })
	require.NoError(t, err)
	<-started

	owner.Destroy()
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	waitDefaultMainThreadIdle(t)
	assert.Zero(t, callbacks.Load())
	state, ok := h.State()
	if ok {
		assert.Equal(t, TaskCancelled, state)
	}
}

// TestGlobal_Remove verifies dequeue through the global helper
func TestGlobal_Remove(t *testing.T) {
	resetGlobal(t)
	Configure(1, WithParallelismCeiling(16))

	release := make(chan struct{})
	started := make(chan struct{})
	_, err := Submit(NewVoidTask(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}).WithoutDeadline())
	require.NoError(t, err)
	<-started
	defer close(release)

	task := NewVoidTask(func(ctx context.Context) error { return nil })
	h, err := Submit(task)
	require.NoError(t, err)

	removed, err := Remove(h.ID())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, TaskCancelled, task.State())
}

// TestGlobal_SubmitAfter verifies delayed submission through the global helper
func TestGlobal_SubmitAfter(t *testing.T) {
	resetGlobal(t)
	Configure(1, WithParallelismCeiling(16))

	start := time.Now()
	h, err := SubmitAfter(NewVoidTask(func(ctx context.Context) error { return nil }), 30*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

// TestGlobal_ShutdownUninstalls verifies Shutdown clears the singleton
func TestGlobal_ShutdownUninstalls(t *testing.T) {
	resetGlobal(t)
	m := Configure(1, WithParallelismCeiling(16))

	Shutdown()

	assert.False(t, IsConfigured())
	assert.True(t, m.Scheduler().IsClosed())
	_, err := core.Submit(m.Scheduler(), NewVoidTask(func(ctx context.Context) error { return nil }))
	assert.ErrorIs(t, err, ErrShutdown)
}

// TestConfigureFromEnv verifies the environment path installs a manager
func TestConfigureFromEnv(t *testing.T) {
	resetGlobal(t)
	t.Setenv("ASYNC_MAX_PARALLEL", "3")
	t.Setenv("ASYNC_PARALLELISM_CEILING", "8")
	t.Setenv("ASYNC_NAME", "from-env")
	t.Setenv("ASYNC_LOG_LEVEL", "error")

	m, err := ConfigureFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3, m.Scheduler().MaxParallel())
	assert.Equal(t, "from-env", m.Scheduler().Name())
	assert.True(t, IsConfigured())
}

func TestConfigureFromEnv_InvalidConfig(t *testing.T) {
	resetGlobal(t)
	t.Setenv("ASYNC_MAX_PARALLEL", "lots")

	_, err := ConfigureFromEnv()

	assert.ErrorIs(t, err, ErrParsingConfig)
	assert.False(t, IsConfigured())
}
