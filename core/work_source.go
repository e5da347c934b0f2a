package core

import (
	"sync/atomic"
)

// WorkSource is the job queue a goroutine worker pool pulls from.
// Workers block in GetWork until a job is posted or the pool stops.
type WorkSource struct {
	queue       *FIFOQueue[Job]
	signal      chan struct{}
	workerCount int

	metricQueued int32 // Waiting in queue
	metricActive int32 // Executing in worker

	panicHandler PanicHandler

	// Lifecycle
	shuttingDown int32 // atomic flag
}

// NewWorkSource creates a WorkSource sized for workerCount workers.
func NewWorkSource(workerCount int, panicHandler PanicHandler) *WorkSource {
	if workerCount < 1 {
		workerCount = 1
	}
	if panicHandler == nil {
		panicHandler = &LoggingPanicHandler{}
	}
	return &WorkSource{
		queue:        NewFIFOQueue[Job](0),
		signal:       make(chan struct{}, workerCount*2),
		workerCount:  workerCount,
		panicHandler: panicHandler,
	}
}

// Post queues job for a worker. It returns false once the source is shut down.
func (s *WorkSource) Post(job Job) bool {
	if job == nil || atomic.LoadInt32(&s.shuttingDown) == 1 {
		return false
	}

	s.queue.TryPush(job)
	atomic.AddInt32(&s.metricQueued, 1)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but job is already queued
	}
	return true
}

// GetWork (Called by Worker)
func (s *WorkSource) GetWork(stopCh <-chan struct{}) (Job, bool) {
	for {
		if job, ok := s.queue.Pop(); ok {
			atomic.AddInt32(&s.metricQueued, -1)
			return job, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// Shutdown stops accepting jobs. Jobs already queued are still handed out by
// GetWork so the tasks behind them reach a terminal state.
func (s *WorkSource) Shutdown() {
	atomic.StoreInt32(&s.shuttingDown, 1)
}

// Metrics
func (s *WorkSource) WorkerCount() int     { return s.workerCount }
func (s *WorkSource) QueuedTaskCount() int { return int(atomic.LoadInt32(&s.metricQueued)) }
func (s *WorkSource) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }

func (s *WorkSource) OnTaskStart() {
	atomic.AddInt32(&s.metricActive, 1)
}

func (s *WorkSource) OnTaskEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}

// GetPanicHandler returns the handler for panicking jobs.
func (s *WorkSource) GetPanicHandler() PanicHandler {
	return s.panicHandler
}
