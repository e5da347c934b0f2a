package asyncmanager

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Swind/go-async-manager/core"
)

// GoroutineWorkerPool manages a set of worker goroutines
// Responsible for pulling jobs from a WorkSource and executing them
type GoroutineWorkerPool struct {
	id        string
	workers   int
	source    *core.WorkSource
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

var _ core.WorkerPool = (*GoroutineWorkerPool)(nil)

// NewGoroutineWorkerPool creates a new GoroutineWorkerPool
func NewGoroutineWorkerPool(id string, workers int) *GoroutineWorkerPool {
	return NewGoroutineWorkerPoolWithHandler(id, workers, nil)
}

// NewGoroutineWorkerPoolWithHandler creates a pool whose worker panics are
// reported to panicHandler. A nil handler logs through the default logger.
func NewGoroutineWorkerPoolWithHandler(id string, workers int, panicHandler core.PanicHandler) *GoroutineWorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &GoroutineWorkerPool{
		id:      id,
		workers: workers,
		source:  core.NewWorkSource(workers, panicHandler),
	}
}

// Start starts all worker goroutines
func (p *GoroutineWorkerPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return // Already running
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i, p.ctx)
	}
}

// Stop stops the pool. Jobs still queued are dropped.
func (p *GoroutineWorkerPool) Stop() {
	p.source.Shutdown()

	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.runningMu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.Join()

	p.runningMu.Lock()
	p.running = false
	p.runningMu.Unlock()
}

// StopGraceful stops accepting jobs, waits for queued and running jobs to
// finish and then stops the workers. Returns context.DeadlineExceeded if the
// queue has not drained within timeout; the workers are stopped regardless.
func (p *GoroutineWorkerPool) StopGraceful(timeout time.Duration) error {
	p.source.Shutdown()

	p.runningMu.RLock()
	running := p.running
	p.runningMu.RUnlock()
	if !running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	var err error
drain:
	for p.source.QueuedTaskCount() > 0 || p.source.ActiveTaskCount() > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break drain
		case <-ticker.C:
		}
	}

	p.Stop()
	return err
}

// ID returns the ID of the pool
func (p *GoroutineWorkerPool) ID() string {
	return p.id
}

// IsRunning returns whether the pool is running
func (p *GoroutineWorkerPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// workerLoop is the main loop for each worker
func (p *GoroutineWorkerPool) workerLoop(id int, ctx context.Context) {
	defer p.wg.Done()
	stopCh := ctx.Done()

	for {
		job, ok := p.source.GetWork(stopCh)
		if !ok {
			return
		}

		p.source.OnTaskStart()

		func() {
			defer func() {
				p.source.OnTaskEnd()
				if r := recover(); r != nil {
					p.source.GetPanicHandler().HandlePanic(ctx, p.id, id, r, debug.Stack())
				}
			}()
			job(ctx)
		}()
	}
}

// Join waits for all worker goroutines to finish
func (p *GoroutineWorkerPool) Join() {
	p.wg.Wait()
}

// Post queues job for the next free worker. It returns false once the pool
// has been stopped.
func (p *GoroutineWorkerPool) Post(job core.Job) bool {
	return p.source.Post(job)
}

// WorkerCount returns the number of workers
func (p *GoroutineWorkerPool) WorkerCount() int {
	return p.workers
}

func (p *GoroutineWorkerPool) QueuedTaskCount() int {
	return p.source.QueuedTaskCount()
}

func (p *GoroutineWorkerPool) ActiveTaskCount() int {
	return p.source.ActiveTaskCount()
}

// Stats returns a point-in-time view of the pool.
func (p *GoroutineWorkerPool) Stats() core.PoolStats {
	return core.PoolStats{
		ID:      p.id,
		Workers: p.workers,
		Queued:  p.QueuedTaskCount(),
		Active:  p.ActiveTaskCount(),
		Running: p.IsRunning(),
	}
}
