package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-async-manager/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports scheduler/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	schedulerPending     *prom.GaugeVec
	schedulerDelayed     *prom.GaugeVec
	schedulerInFlight    *prom.GaugeVec
	schedulerMaxParallel *prom.GaugeVec
	schedulerCompleted   *prom.GaugeVec
	schedulerRejected    *prom.GaugeVec
	schedulerActive      *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors
// under namespace ("asyncmanager" when empty).
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "asyncmanager"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) (*prom.GaugeVec, error) {
		return registerCollector(reg, prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels))
	}

	p := &SnapshotPoller{
		interval:   interval,
		schedulers: make(map[string]SchedulerSnapshotProvider),
		pools:      make(map[string]PoolSnapshotProvider),
	}

	var err error
	if p.schedulerPending, err = gauge("scheduler_pending", "Number of pending tasks per scheduler.", "scheduler"); err != nil {
		return nil, err
	}
	if p.schedulerDelayed, err = gauge("scheduler_delayed", "Number of tasks waiting out a start delay per scheduler.", "scheduler"); err != nil {
		return nil, err
	}
	if p.schedulerInFlight, err = gauge("scheduler_in_flight", "Number of occupied slots per scheduler.", "scheduler"); err != nil {
		return nil, err
	}
	if p.schedulerMaxParallel, err = gauge("scheduler_max_parallel", "Parallelism limit per scheduler.", "scheduler"); err != nil {
		return nil, err
	}
	if p.schedulerCompleted, err = gauge("scheduler_completed_total", "Scheduler completed task count snapshot.", "scheduler"); err != nil {
		return nil, err
	}
	if p.schedulerRejected, err = gauge("scheduler_rejected_total", "Scheduler rejected task count snapshot.", "scheduler"); err != nil {
		return nil, err
	}
	if p.schedulerActive, err = gauge("scheduler_active", "Scheduler lifecycle state (1=active, 0=shut down).", "scheduler"); err != nil {
		return nil, err
	}
	if p.poolQueued, err = gauge("pool_queued", "Queued jobs per pool.", "pool"); err != nil {
		return nil, err
	}
	if p.poolActive, err = gauge("pool_active", "Active jobs per pool.", "pool"); err != nil {
		return nil, err
	}
	if p.poolWorkers, err = gauge("pool_workers", "Worker count per pool.", "pool"); err != nil {
		return nil, err
	}
	if p.poolRunning, err = gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"); err != nil {
		return nil, err
	}
	return p, nil
}
// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		p.schedulerPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.schedulerDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.schedulerInFlight.WithLabelValues(name).Set(float64(stats.InFlight))
		p.schedulerMaxParallel.WithLabelValues(name).Set(float64(stats.MaxParallel))
		p.schedulerCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.schedulerRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		if stats.State == core.StateActive {
			p.schedulerActive.WithLabelValues(name).Set(1)
		} else {
			p.schedulerActive.WithLabelValues(name).Set(0)
		}
	}
	p.schedulersMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		if stats.Running {
			p.poolRunning.WithLabelValues(name).Set(1)
		} else {
			p.poolRunning.WithLabelValues(name).Set(0)
		}
	}
	p.poolsMu.RUnlock()
}
