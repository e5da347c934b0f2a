package asyncmanager

import (
	"time"

	"github.com/Swind/go-async-manager/core"
)

// Option configures a Manager.
type Option func(*options)

type options struct {
	name            string
	dispatcher      core.Dispatcher
	defaultDeadline time.Duration
	maxPending      int
	retry           *core.RetryPolicy
	ceiling         int
	historyCapacity int
	logger          core.Logger
	panicHandler    core.PanicHandler
	metrics         core.Metrics
	rejected        core.RejectedTaskHandler
}

func applyOptions(opts []Option) options {
	o := options{name: "asyncmanager"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = core.NewNoOpLogger()
	}
	if o.panicHandler == nil {
		o.panicHandler = &core.LoggingPanicHandler{Logger: o.logger}
	}
	if o.dispatcher == nil {
		o.dispatcher = DefaultMainThread()
	}
	return o
}

func (o options) schedulerConfig() *core.SchedulerConfig {
	return &core.SchedulerConfig{
		Name:                o.name,
		DefaultDeadline:     o.defaultDeadline,
		MaxPending:          o.maxPending,
		SubmitRetry:         o.retry,
		ParallelismCeiling:  o.ceiling,
		HistoryCapacity:     o.historyCapacity,
		Logger:              o.logger,
		PanicHandler:        o.panicHandler,
		Metrics:             o.metrics,
		RejectedTaskHandler: o.rejected,
	}
}

// WithName labels the manager in logs, metrics and history.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithDispatcher sets where callbacks run. Defaults to DefaultMainThread().
func WithDispatcher(d core.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithDefaultDeadline sets the deadline for tasks that set none.
// A negative value disables the default deadline.
func WithDefaultDeadline(d time.Duration) Option {
	return func(o *options) { o.defaultDeadline = d }
}

// WithMaxPending bounds the pending queue. Submissions retry with backoff
// while it is full and then fail with core.ErrQueueFull.
func WithMaxPending(n int) Option {
	return func(o *options) { o.maxPending = n }
}

// WithSubmitRetry sets the backoff used while a bounded queue is full.
func WithSubmitRetry(p core.RetryPolicy) Option {
	return func(o *options) { o.retry = &p }
}

// WithParallelismCeiling overrides the upper clamp for maxParallel,
// which otherwise is runtime.NumCPU().
func WithParallelismCeiling(n int) Option {
	return func(o *options) { o.ceiling = n }
}

// WithHistoryCapacity sets how many execution records RecentTasks keeps.
func WithHistoryCapacity(n int) Option {
	return func(o *options) { o.historyCapacity = n }
}

func WithLogger(l core.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithPanicHandler(h core.PanicHandler) Option {
	return func(o *options) { o.panicHandler = h }
}

func WithMetrics(m core.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithRejectedTaskHandler(h core.RejectedTaskHandler) Option {
	return func(o *options) { o.rejected = h }
}
