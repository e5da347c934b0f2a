package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	asyncmanager "github.com/Swind/go-async-manager"
	"github.com/Swind/go-async-manager/core"
	obs "github.com/Swind/go-async-manager/observability/prometheus"
)

var errSynthetic = errors.New("synthetic failure")

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Submit synthetic tasks and report their outcomes",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 200, Usage: "Number of tasks to submit"},
			&cli.IntFlag{Name: "parallel", Aliases: []string{"p"}, Value: 4, Usage: "Maximum tasks running at once"},
			&cli.IntFlag{Name: "submitters", Value: 4, Usage: "Goroutines submitting concurrently"},
			&cli.DurationFlag{Name: "work", Value: 20 * time.Millisecond, Usage: "Mean body duration"},
			&cli.DurationFlag{Name: "deadline", Value: 100 * time.Millisecond, Usage: "Per-task deadline"},
			&cli.Float64Flag{Name: "fail-rate", Value: 0.05, Usage: "Fraction of bodies returning an error"},
			&cli.Float64Flag{Name: "cancel-rate", Value: 0.05, Usage: "Fraction of tasks cancelled right after submit"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "Serve /metrics on `ADDR` while running (for example :2112)"},
			&cli.DurationFlag{Name: "linger", Value: 0, Usage: "Keep serving metrics this long after the run"},
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "debug, info, warn or error"},
		},
		Action: runAction,
	}
}

type tally struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
}

func runAction(c *cli.Context) error {
	tasks := c.Int("tasks")
	if tasks < 1 {
		return cli.Exit("tasks must be at least 1", 1)
	}
	failRate, cancelRate := c.Float64("fail-rate"), c.Float64("cancel-rate")
	if failRate < 0 || failRate > 1 || cancelRate < 0 || cancelRate > 1 {
		return cli.Exit("rates must be between 0 and 1", 1)
	}

	logger, err := asyncmanager.NewLogger(c.String("log-level"), asyncmanager.LogFormatText, nil)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("asyncload", reg, obs.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	poller, err := obs.NewSnapshotPoller("asyncload", reg, 100*time.Millisecond)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	m := asyncmanager.New(c.Int("parallel"),
		asyncmanager.WithName("asyncload"),
		asyncmanager.WithLogger(logger),
		asyncmanager.WithMetrics(exporter),
		asyncmanager.WithDefaultDeadline(c.Duration("deadline")),
		asyncmanager.WithParallelismCeiling(max(c.Int("parallel"), 1)),
	)
	poller.AddScheduler("asyncload", m)
	poller.AddPool(m.Pool().ID(), m.Pool())
	poller.Start(c.Context)
	defer poller.Stop()

	if addr := c.String("metrics-addr"); addr != "" {
		server := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() { _ = server.ListenAndServe() }()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = server.Shutdown(ctx)
		}()
	}

	var t tally
	work := c.Duration("work")
	start := time.Now()

	submitters := max(c.Int("submitters"), 1)
	var g errgroup.Group
	for s := 0; s < submitters; s++ {
		g.Go(func() error {
			for i := s; i < tasks; i += submitters {
				task := core.NewVoidTask(syntheticBody(work, failRate)).
					WithName(fmt.Sprintf("load-%d", i)).
					OnSuccess(func(struct{}) { t.succeeded.Add(1) }).
					OnFailure(func(err error) {
						if errors.Is(err, core.ErrTimedOut) {
							t.timedOut.Add(1)
							return
						}
						t.failed.Add(1)
					})
				h, err := core.Submit(m.Scheduler(), task)
				if err != nil {
					return fmt.Errorf("submit task %d: %w", i, err)
				}
				if rand.Float64() < cancelRate {
					h.Cancel()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.Shutdown()
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	if err := m.Scheduler().WaitIdle(c.Context); err != nil {
		return err
	}
	// Replies are delivered asynchronously on the main thread.
	if err := asyncmanager.DefaultMainThread().WaitIdle(c.Context); err != nil {
		return err
	}
	elapsed := time.Since(start)
	stats := m.Stats()

	fmt.Printf("✓ %d tasks in %v (parallel=%d)\n", tasks, elapsed.Round(time.Millisecond), stats.MaxParallel)
	fmt.Printf("  succeeded=%d failed=%d timed_out=%d cancelled=%d rejected=%d\n",
		t.succeeded.Load(), t.failed.Load(), t.timedOut.Load(),
		int64(tasks)-t.succeeded.Load()-t.failed.Load()-t.timedOut.Load(), stats.Rejected)

	if linger := c.Duration("linger"); linger > 0 && c.String("metrics-addr") != "" {
		fmt.Printf("  serving metrics on %s for %v\n", c.String("metrics-addr"), linger)
		select {
		case <-time.After(linger):
		case <-c.Context.Done():
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.ShutdownAndWait(ctx)
}

// syntheticBody sleeps around mean, honouring ctx, and fails with failRate.
func syntheticBody(mean time.Duration, failRate float64) func(ctx context.Context) error {
	d := time.Duration(float64(mean) * (0.5 + rand.Float64()))
	fail := rand.Float64() < failRate
	return func(ctx context.Context) error {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
		if fail {
			return errSynthetic
		}
		return nil
	}
}
