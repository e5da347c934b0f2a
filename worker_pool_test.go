package asyncmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-async-manager/core"
)

type recordingPanicHandler struct {
	mu      sync.Mutex
	sources []string
	workers []int
	values  []any
}

func (h *recordingPanicHandler) HandlePanic(ctx context.Context, source string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources = append(h.sources, source)
	h.workers = append(h.workers, workerID)
	h.values = append(h.values, panicInfo)
}

func (h *recordingPanicHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

func TestGoroutineWorkerPool_Lifecycle(t *testing.T) {
	pool := NewGoroutineWorkerPool("test-pool", 2)

	assert.Equal(t, "test-pool", pool.ID())
	assert.False(t, pool.IsRunning(), "pool should not be running initially")

	pool.Start(context.Background())
	pool.Start(context.Background())
	assert.True(t, pool.IsRunning())
	assert.Equal(t, 2, pool.WorkerCount())

	pool.Stop()
	pool.Stop()
	assert.False(t, pool.IsRunning())
	assert.False(t, pool.Post(func(ctx context.Context) {}), "stopped pool must refuse jobs")
}

func TestGoroutineWorkerPool_ClampsWorkers(t *testing.T) {
	pool := NewGoroutineWorkerPool("tiny", 0)
	assert.Equal(t, 1, pool.WorkerCount())
}

// TestGoroutineWorkerPool_JobExecution verifies every posted job runs
func TestGoroutineWorkerPool_JobExecution(t *testing.T) {
	pool := NewGoroutineWorkerPool("exec-pool", 4)
	pool.Start(context.Background())
	defer pool.Stop()

	var counter atomic.Int32
	var wg sync.WaitGroup
	const jobCount = 10
	wg.Add(jobCount)

	for i := 0; i < jobCount; i++ {
		require.True(t, pool.Post(func(ctx context.Context) {
			defer wg.Done()
			counter.Add(1)
			time.Sleep(10 * time.Millisecond)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(jobCount), counter.Load())
}

// TestGoroutineWorkerPool_Stats verifies queued and active counters
// Given: A single-worker pool whose worker is blocked
// When: Two more jobs are posted
// Then: Stats reports one active job and two queued jobs
func TestGoroutineWorkerPool_Stats(t *testing.T) {
	// Arrange
	pool := NewGoroutineWorkerPool("metrics-pool", 1)
	pool.Start(context.Background())
	defer pool.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	pool.Post(func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	// Act
	pool.Post(func(ctx context.Context) {})
	pool.Post(func(ctx context.Context) {})

	// Assert
	stats := pool.Stats()
	assert.Equal(t, "metrics-pool", stats.ID)
	assert.Equal(t, 1, stats.Workers)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 2, stats.Queued)
	assert.True(t, stats.Running)

	close(block)
	require.NoError(t, pool.StopGraceful(2*time.Second))
	assert.Zero(t, pool.QueuedTaskCount())
	assert.Zero(t, pool.ActiveTaskCount())
}

// TestGoroutineWorkerPool_PanicRecovery verifies a panicking job leaves the worker alive
func TestGoroutineWorkerPool_PanicRecovery(t *testing.T) {
	handler := &recordingPanicHandler{}
	pool := NewGoroutineWorkerPoolWithHandler("panic-pool", 1, handler)
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{})
	pool.Post(func(ctx context.Context) { panic("worker exploded") })
	pool.Post(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	require.Equal(t, 1, handler.count())
	assert.Equal(t, "panic-pool", handler.sources[0])
	assert.Equal(t, 0, handler.workers[0])
	assert.Equal(t, "worker exploded", handler.values[0])
}

// TestGoroutineWorkerPool_StopGracefulTimeout verifies the drain deadline
func TestGoroutineWorkerPool_StopGracefulTimeout(t *testing.T) {
	pool := NewGoroutineWorkerPool("slow-pool", 1)
	pool.Start(context.Background())

	release := make(chan struct{})
	started := make(chan struct{})
	pool.Post(func(ctx context.Context) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	<-started

	err := pool.StopGraceful(20 * time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, pool.IsRunning())
	close(release)
	assert.NoError(t, pool.StopGraceful(time.Second), "stopping twice is a no-op")
}

// TestGoroutineWorkerPool_DrivesScheduler verifies the pool as a scheduler backend
func TestGoroutineWorkerPool_DrivesScheduler(t *testing.T) {
	pool := NewGoroutineWorkerPool("scheduler-pool", 3)
	pool.Start(context.Background())
	defer pool.Stop()

	s := core.NewScheduler(pool, core.DispatcherFunc(func(cb func()) { cb() }), 3, &core.SchedulerConfig{ParallelismCeiling: 16})
	defer s.Shutdown()

	var running, peak atomic.Int32
	for i := 0; i < 9; i++ {
		_, err := core.Submit(s, core.NewVoidTask(func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int64(9), s.Stats().Completed)
}
