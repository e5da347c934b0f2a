package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleState is the lifecycle of a Scheduler.
type LifecycleState int32

const (
	StateActive LifecycleState = iota
	StateShuttingDown
	StateStopped
)

func (s LifecycleState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int32(s))
	}
}

// ClampParallelism clamps n to [1, ceiling]. A ceiling below 1 selects runtime.NumCPU().
func ClampParallelism(n, ceiling int) int {
	if ceiling < 1 {
		ceiling = runtime.NumCPU()
	}
	return max(1, min(n, ceiling))
}

// Scheduler keeps at most maxParallel tasks running on a WorkerPool and feeds
// it from a FIFO pending queue. Every submit and every completion runs an
// admission pass, so the pool stays saturated without a poller goroutine.
// Callbacks are delivered through the Dispatcher, never on a worker.
type Scheduler struct {
	name            string
	pool            WorkerPool
	dispatcher      Dispatcher
	maxParallel     int
	defaultDeadline time.Duration
	retry           RetryPolicy

	// mu serializes admission; inFlight, running and the idle channel are only
	// touched while holding it.
	mu       sync.Mutex
	queue    *FIFOQueue[runnable]
	delays   *delayManager
	inFlight int
	running  map[TaskID]runnable
	idle     bool
	idleCh   chan struct{}
	state    atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	logger              Logger
	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	history   executionHistory

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	ownerRelease func()
}

// NewScheduler creates an active Scheduler with maxParallel slots.
// Panics if pool or dispatcher is nil.
func NewScheduler(pool WorkerPool, dispatcher Dispatcher, maxParallel int, config *SchedulerConfig) *Scheduler {
	if pool == nil {
		panic("Scheduler: pool must not be nil")
	}
	if dispatcher == nil {
		panic("Scheduler: dispatcher must not be nil")
	}

	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	idleCh := make(chan struct{})
	close(idleCh)

	s := &Scheduler{
		name:                cfg.Name,
		pool:                pool,
		dispatcher:          dispatcher,
		maxParallel:         ClampParallelism(maxParallel, cfg.ParallelismCeiling),
		defaultDeadline:     cfg.DefaultDeadline,
		retry:               *cfg.SubmitRetry,
		queue:               NewFIFOQueue[runnable](cfg.MaxPending),
		running:             make(map[TaskID]runnable),
		idle:                true,
		idleCh:              idleCh,
		ctx:                 ctx,
		cancel:              cancel,
		logger:              cfg.Logger,
		panicHandler:        cfg.PanicHandler,
		metrics:             cfg.Metrics,
		rejectedTaskHandler: cfg.RejectedTaskHandler,
		history:             newExecutionHistory(cfg.HistoryCapacity),
		shutdownChan:        make(chan struct{}),
	}
	s.delays = newDelayManager(s.releaseDelayed)

	s.logger.Info("scheduler configured",
		F("scheduler", s.name),
		F("max_parallel", s.maxParallel),
		F("default_deadline", s.defaultDeadline),
		F("max_pending", cfg.MaxPending),
	)
	return s
}

// Name returns the scheduler name.
func (s *Scheduler) Name() string { return s.name }

// MaxParallel returns the clamped number of slots.
func (s *Scheduler) MaxParallel() int { return s.maxParallel }

// State returns the current lifecycle state.
func (s *Scheduler) State() LifecycleState { return LifecycleState(s.state.Load()) }

// IsClosed returns true once Shutdown has been called.
func (s *Scheduler) IsClosed() bool { return s.State() != StateActive }

// PendingCount returns the number of queued tasks that have not been admitted.
func (s *Scheduler) PendingCount() int { return s.queue.Len() }

// InFlightCount returns the number of occupied slots.
func (s *Scheduler) InFlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Stats returns current observability data for this scheduler.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		Name:        s.name,
		State:       s.State(),
		MaxParallel: s.maxParallel,
		Pending:     s.PendingCount(),
		Delayed:     s.delays.count(),
		InFlight:    s.InFlightCount(),
		Submitted:   s.submitted.Load(),
		Completed:   s.completed.Load(),
		Rejected:    s.rejected.Load(),
	}
	if last, ok := s.history.Last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns execution records in newest-first order.
func (s *Scheduler) RecentTasks(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// =============================================================================
// Submission
// =============================================================================

// Submit hands t to s and returns a handle for cancelling or removing it.
//
// Errors: ErrNotConfigured for a nil scheduler, ErrNilBody, ErrShutdown,
// ErrQueueFull when a bounded queue stayed full through every retry,
// ErrAlreadySubmitted when t was submitted before, and ErrAlreadyStarted when
// Task.Run already consumed t.
func Submit[T any](s *Scheduler, t *Task[T]) (*TaskHandle[T], error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	if t == nil || !t.hasBody() {
		return nil, ErrNilBody
	}
	if err := s.submit(t); err != nil {
		return nil, err
	}
	return newTaskHandle(s, t), nil
}

// Await submits t and blocks until it finishes or ctx is done. Cancelling ctx
// cancels the task. Call it from a background goroutine, never from the
// dispatcher's thread.
func Await[T any](ctx context.Context, s *Scheduler, t *Task[T]) (T, error) {
	var zero T
	if _, err := Submit(s, t); err != nil {
		return zero, err
	}
	select {
	case <-t.Done():
		return t.Result()
	case <-ctx.Done():
		t.Cancel()
		return zero, ctx.Err()
	}
}

// SubmitAfter hands t to s once delay has elapsed. Until then the task is
// neither pending nor counted by WaitIdle, but Remove and Shutdown still
// reach it. A non-positive delay behaves like Submit.
func SubmitAfter[T any](s *Scheduler, t *Task[T], delay time.Duration) (*TaskHandle[T], error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	if t == nil || !t.hasBody() {
		return nil, ErrNilBody
	}
	if err := s.submitAfter(t, delay); err != nil {
		return nil, err
	}
	return newTaskHandle(s, t), nil
}

func (s *Scheduler) submit(r runnable) error {
	if err := s.claim(r); err != nil {
		return err
	}
	if err := s.enqueue(r, s.retry); err != nil {
		r.unmarkSubmitted()
		return err
	}
	return nil
}

func (s *Scheduler) submitAfter(r runnable, delay time.Duration) error {
	if delay <= 0 {
		return s.submit(r)
	}
	if err := s.claim(r); err != nil {
		return err
	}
	if s.State() != StateActive || !s.delays.add(r, delay) {
		r.unmarkSubmitted()
		s.reject(r, "shutdown")
		return ErrShutdown
	}
	s.logger.Debug("task delayed",
		F("scheduler", s.name),
		F("task", r.ID().String()),
		F("delay", delay),
	)
	return nil
}

// claim marks r as owned by a scheduler. Tasks already submitted, or
// already consumed by Task.Run, are rejected.
func (s *Scheduler) claim(r runnable) error {
	if !r.markSubmitted() {
		s.reject(r, "already submitted")
		return ErrAlreadySubmitted
	}
	if r.State() != TaskPending {
		r.unmarkSubmitted()
		s.reject(r, "already started")
		return ErrAlreadyStarted
	}
	return nil
}

// releaseDelayed runs on the delay goroutine when a delayed task comes due.
// A full queue rejects the task at once; the submit backoff does not apply.
func (s *Scheduler) releaseDelayed(r runnable) {
	if err := s.enqueue(r, NoRetry()); err != nil {
		r.discard()
	}
}

// enqueue pushes r, retrying per retry while a bounded queue is full,
// and then runs an admission pass.
func (s *Scheduler) enqueue(r runnable, retry RetryPolicy) error {
	for attempt := 0; ; attempt++ {
		pushed, err := s.tryEnqueue(r)
		if err != nil {
			s.reject(r, "shutdown")
			return err
		}
		if pushed {
			break
		}
		if attempt >= retry.MaxRetries {
			s.reject(r, "queue full")
			return ErrQueueFull
		}
		time.Sleep(retry.calculateDelay(attempt))
	}

	s.submitted.Add(1)
	s.logger.Debug("task submitted",
		F("scheduler", s.name),
		F("task", r.ID().String()),
		F("name", r.Name()),
	)
	s.admit()
	return nil
}

func (s *Scheduler) tryEnqueue(r runnable) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateActive {
		return false, ErrShutdown
	}
	if !s.queue.TryPush(r) {
		return false, nil
	}
	s.markBusyLocked()
	s.metrics.RecordQueueDepth(s.name, s.queue.Len())
	return true, nil
}

func (s *Scheduler) reject(r runnable, reason string) {
	s.rejected.Add(1)
	s.rejectedTaskHandler.HandleRejectedTask(s.name, r.ID(), reason)
	s.metrics.RecordTaskRejected(s.name, reason)
}

// =============================================================================
// Admission
// =============================================================================

// admit moves tasks from the pending queue into free slots. Cancelled tasks
// are not filtered here; they take a slot just long enough to fail fast.
func (s *Scheduler) admit() {
	var launches []runnable

	s.mu.Lock()
	if s.State() == StateActive {
		for s.inFlight < s.maxParallel {
			r, ok := s.queue.Pop()
			if !ok {
				break
			}
			if _, dup := s.running[r.ID()]; dup {
				s.mu.Unlock()
				panic(fmt.Sprintf("Scheduler: task %s admitted twice", r.ID()))
			}
			s.inFlight++
			s.running[r.ID()] = r
			launches = append(launches, r)
		}
	}
	if s.inFlight > s.maxParallel {
		s.mu.Unlock()
		panic(fmt.Sprintf("Scheduler: %d tasks in flight exceeds limit %d", s.inFlight, s.maxParallel))
	}
	s.metrics.RecordQueueDepth(s.name, s.queue.Len())
	s.metrics.RecordInFlight(s.name, s.inFlight)
	s.maybeIdleLocked()
	s.mu.Unlock()

	// Post outside the lock: a pool may run the job inline.
	for _, r := range launches {
		if !s.pool.Post(s.launch(r)) {
			r.discard()
			s.logger.Warn("worker pool refused task",
				F("scheduler", s.name),
				F("task", r.ID().String()),
			)
			s.onTaskComplete(r)
		}
	}
}

// launch wraps a task with its completion bookkeeping.
func (s *Scheduler) launch(r runnable) Job {
	return func(_ context.Context) {
		defer s.onTaskComplete(r)

		startedAt := time.Now()
		state, err := r.execute(s.ctx, r.deadlineOr(s.defaultDeadline), s.dispatcher)
		s.observe(r, state, err, startedAt, time.Now())
	}
}

// onTaskComplete releases the slot and refills it.
func (s *Scheduler) onTaskComplete(r runnable) {
	s.mu.Lock()
	s.inFlight--
	delete(s.running, r.ID())
	if s.inFlight < 0 {
		s.mu.Unlock()
		panic("Scheduler: in-flight count went negative")
	}
	s.mu.Unlock()

	s.completed.Add(1)
	s.admit()
}

func (s *Scheduler) observe(r runnable, state TaskState, err error, startedAt, finishedAt time.Time) {
	outcome := classifyOutcome(state, err)
	record := TaskExecutionRecord{
		TaskID:        r.ID(),
		Name:          r.Name(),
		SchedulerName: s.name,
		Outcome:       outcome,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Duration:      finishedAt.Sub(startedAt),
	}
	if err != nil && outcome != OutcomeCancelled {
		record.Err = err.Error()
	}
	s.history.Add(record)
	s.metrics.RecordTaskDuration(s.name, outcome, record.Duration)

	fields := []Field{
		F("scheduler", s.name),
		F("task", r.ID().String()),
		F("name", record.Name),
		F("duration", record.Duration),
	}

	switch outcome {
	case OutcomeSucceeded, OutcomeCancelled:
		s.logger.Debug("task "+outcome, fields...)
	case OutcomeTimedOut:
		s.logger.Warn("task timed out", append(fields, F("error", err))...)
	case OutcomePanicked:
		var pe *PanicError
		errors.As(err, &pe)
		s.panicHandler.HandlePanic(s.ctx, s.name, -1, pe.Value, pe.Stack)
		s.metrics.RecordTaskPanic(s.name, pe.Value)
	default:
		if !r.hasFailureHandler() {
			s.logger.Debug("task failed without failure handler", append(fields, F("error", err))...)
		}
	}
}

// =============================================================================
// Removal and teardown
// =============================================================================

// Remove strikes the task from the pending queue, or from the delay heap
// when it was submitted with SubmitAfter. It returns false when the task is
// running, finished, or unknown to this scheduler.
func (s *Scheduler) Remove(id TaskID) bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	r, ok := s.queue.RemoveFirst(func(r runnable) bool { return r.ID() == id })
	if ok {
		s.metrics.RecordQueueDepth(s.name, s.queue.Len())
		s.maybeIdleLocked()
	}
	s.mu.Unlock()

	if !ok {
		r, ok = s.delays.remove(id)
	}
	if ok {
		r.discard()
		s.logger.Debug("task removed", F("scheduler", s.name), F("task", id.String()))
	}
	return ok
}

// Shutdown cancels every pending and in-flight task, empties the queue and
// cancels the context handed to running bodies. It does not wait for running
// bodies; use WaitIdle for that. Safe to call more than once and from a callback.
func (s *Scheduler) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.state.Store(int32(StateShuttingDown))

		s.mu.Lock()
		pending := s.queue.Drain()
		running := make([]runnable, 0, len(s.running))
		for _, r := range s.running {
			running = append(running, r)
		}
		release := s.ownerRelease
		s.ownerRelease = nil
		s.metrics.RecordQueueDepth(s.name, 0)
		s.maybeIdleLocked()
		s.mu.Unlock()

		delayed := s.delays.stop()
		for _, r := range pending {
			r.discard()
		}
		for _, r := range delayed {
			r.discard()
		}
		for _, r := range running {
			r.Cancel()
		}
		s.cancel()
		if release != nil {
			release()
		}

		s.state.Store(int32(StateStopped))
		close(s.shutdownChan)

		s.logger.Info("scheduler shut down",
			F("scheduler", s.name),
			F("dropped_pending", len(pending)),
			F("dropped_delayed", len(delayed)),
			F("cancelled_running", len(running)),
		)
	})
}

// WaitShutdown blocks until Shutdown() is called on this scheduler.
func (s *Scheduler) WaitShutdown(ctx context.Context) error {
	select {
	case <-s.shutdownChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitIdle blocks until the queue is empty and no slot is occupied.
// Bodies abandoned by a timeout do not occupy a slot.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	ch := s.idleCh
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BindOwner shuts the scheduler down when owner is destroyed.
func (s *Scheduler) BindOwner(owner Lifecycle) {
	release := owner.OnDestroy(s.Shutdown)

	s.mu.Lock()
	if s.State() == StateActive {
		s.ownerRelease = release
		release = nil
	}
	s.mu.Unlock()

	if release != nil {
		release()
	}
}

func (s *Scheduler) markBusyLocked() {
	if s.idle {
		s.idle = false
		s.idleCh = make(chan struct{})
	}
}

func (s *Scheduler) maybeIdleLocked() {
	if !s.idle && s.inFlight == 0 && s.queue.Len() == 0 {
		s.idle = true
		close(s.idleCh)
	}
}
