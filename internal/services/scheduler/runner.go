package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Task is one recurring job. Fn must be safe to run again after a failure.
type Task struct {
	Name       string
	Every      time.Duration
	RunAtStart bool
	Fn         func(ctx context.Context) error
}

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_total", Help: "Cleanup task runs by outcome",
	}, []string{"task", "result"})
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_run_duration_seconds",
		Help:    "Cleanup task run duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
)

type Runner struct {
	Log   *zap.Logger
	Tasks []Task
}

func New(log *zap.Logger, tasks ...Task) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Log: log.With(zap.String("component", "scheduler")), Tasks: tasks}
}

// Run drives every task on its own ticker until ctx is done, then waits for
// in-flight runs to return.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, t := range r.Tasks {
		if t.Every <= 0 || t.Fn == nil {
			r.Log.Warn("task skipped", zap.String("task", t.Name), zap.Duration("every", t.Every))
			continue
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			r.loop(ctx, t)
		}(t)
	}
	r.Log.Info("scheduler started", zap.Int("tasks", len(r.Tasks)))
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Every)
	defer ticker.Stop()

	if t.RunAtStart {
		r.runOnce(ctx, t)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, t)
		}
	}
}

// runOnce never lets a task failure or panic escape; the next tick runs as usual.
func (r *Runner) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	err := safeCall(ctx, t.Fn)
	runDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		runsTotal.WithLabelValues(t.Name, "error").Inc()
		r.Log.Warn("task failed", zap.String("task", t.Name), zap.Error(err))
		return
	}
	runsTotal.WithLabelValues(t.Name, "ok").Inc()
	r.Log.Debug("task done", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx)
}
