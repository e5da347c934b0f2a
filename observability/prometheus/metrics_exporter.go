package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-async-manager/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	inFlight            *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "asyncmanager"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"scheduler", "outcome"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"scheduler"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"scheduler", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current pending queue depth.",
	}, []string{"scheduler"})
	inFlightVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "in_flight",
		Help:      "Tasks currently occupying a parallelism slot.",
	}, []string{"scheduler"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if inFlightVec, err = registerCollector(reg, inFlightVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		inFlight:            inFlightVec,
	}, nil
}

// RecordTaskDuration records task execution duration by outcome.
func (m *MetricsExporter) RecordTaskDuration(schedulerName string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(outcome, "unknown")).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(schedulerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Set(float64(depth))
}

// RecordInFlight records the number of occupied slots.
func (m *MetricsExporter) RecordInFlight(schedulerName string, inFlight int) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(normalizeLabel(schedulerName, "unknown")).Set(float64(inFlight))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(schedulerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(schedulerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
