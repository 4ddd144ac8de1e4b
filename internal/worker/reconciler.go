package worker

import (
	"context"
	"time"

	"github.com/goliatone/go-translations/internal/eventbus"
	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/internal/tasks"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/goliatone/go-translations/translation"
)

// Reconciler defaults.
const (
	DefaultSweepInterval = time.Minute
	DefaultPendingAge    = 5 * time.Minute
	DefaultSweepBatch    = 100
)

// Reconciler repairs the two delivery gaps the bus cannot close on its own:
// tasks whose scheduling emit was lost, and stream entries claimed by a
// consumer that died mid-flight. It re-emits events for pending tasks that
// have sat untouched past a threshold and asks claim-capable buses to
// recover stale pending entries.
type Reconciler struct {
	tasks    tasks.TaskRepository
	resolver tasks.BusResolver
	busCfg   eventbus.Config
	interval time.Duration
	minAge   time.Duration
	batch    int
	logger   interfaces.Logger
	now      func() time.Time
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// SweepEvery overrides the loop interval.
func SweepEvery(interval time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// PendingOlderThan overrides the minimum idle age a pending task must reach
// before the sweep re-signals it.
func PendingOlderThan(age time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if age > 0 {
			r.minAge = age
		}
	}
}

// SweepBatch overrides the per-pass task limit.
func SweepBatch(limit int) ReconcilerOption {
	return func(r *Reconciler) {
		if limit > 0 {
			r.batch = limit
		}
	}
}

// ReconcilerLogger attaches a logger.
func ReconcilerLogger(logger interfaces.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// ReconcilerClock overrides the time source.
func ReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(taskRepo tasks.TaskRepository, resolver tasks.BusResolver, busCfg eventbus.Config, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		tasks:    taskRepo,
		resolver: resolver,
		busCfg:   busCfg,
		interval: DefaultSweepInterval,
		minAge:   DefaultPendingAge,
		batch:    DefaultSweepBatch,
		logger:   logging.NoOp(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs a single reconciliation pass and returns how many events it
// re-emitted. Per-task emit failures are logged and skipped; the next pass
// picks the task up again.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.minAge)
	stale, err := r.tasks.ListPendingBefore(ctx, cutoff, r.batch)
	if err != nil {
		return 0, err
	}

	emitted := 0
	byNamespace := make(map[string][]*translation.Task)
	for _, task := range stale {
		namespace := tasks.Namespace(task.EntityType)
		byNamespace[namespace] = append(byNamespace[namespace], task)
	}

	for namespace, group := range byNamespace {
		bus, err := r.resolver.GetBus(ctx, namespace, r.busCfg)
		if err != nil {
			r.logger.Error("bus unavailable during sweep", "namespace", namespace, "error", err)
			continue
		}
		for _, task := range group {
			if err := bus.Emit(ctx, translation.EventTaskScheduled, translation.NewTaskEvent(task)); err != nil {
				r.logger.Error("sweep emit failed", "task_id", task.ID, "error", err)
				continue
			}
			emitted++
		}
		if claimer, ok := bus.(eventbus.Claimer); ok {
			reclaimed, err := claimer.Claim(ctx, translation.EventTaskScheduled)
			if err != nil {
				r.logger.Error("stale entry claim failed", "namespace", namespace, "error", err)
			} else if reclaimed > 0 {
				r.logger.Info("reclaimed stale deliveries", "namespace", namespace, "count", reclaimed)
			}
		}
	}

	if emitted > 0 {
		r.logger.Info("reconciliation re-signaled pending tasks", "count", emitted)
	}
	return emitted, nil
}
