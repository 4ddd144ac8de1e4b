// Package worker consumes task-scheduled events and drives each translation
// task through its lifecycle: claim, generate, verify, persist, complete.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-translations/internal/eventbus"
	"github.com/goliatone/go-translations/internal/generator"
	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/internal/tasks"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/goliatone/go-translations/translation"
)

// DefaultRetryLimit parks a task as failed after this many attempts.
const DefaultRetryLimit = 3

// Worker subscribes to each entity type's bus namespace and processes
// scheduled translation tasks. Handlers are idempotent: redelivered events
// for tasks that already moved past pending are acknowledged without work.
type Worker struct {
	tasks      tasks.TaskRepository
	records    tasks.RecordRepository
	generator  generator.Generator
	resolver   tasks.BusResolver
	busCfg     eventbus.Config
	retryLimit int
	logger     interfaces.Logger
	now        func() time.Time

	buses []eventbus.Bus
}

// Option configures a Worker.
type Option func(*Worker)

// WithRetryLimit overrides the retry ceiling.
func WithRetryLimit(limit int) Option {
	return func(w *Worker) {
		if limit > 0 {
			w.retryLimit = limit
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger interfaces.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// New constructs a Worker.
func New(taskRepo tasks.TaskRepository, recordRepo tasks.RecordRepository, gen generator.Generator, resolver tasks.BusResolver, busCfg eventbus.Config, opts ...Option) *Worker {
	w := &Worker{
		tasks:      taskRepo,
		records:    recordRepo,
		generator:  gen,
		resolver:   resolver,
		busCfg:     busCfg,
		retryLimit: DefaultRetryLimit,
		logger:     logging.NoOp(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the worker's handler on every entity namespace.
func (w *Worker) Start(ctx context.Context) error {
	for _, entityType := range translation.EntityTypes() {
		bus, err := w.resolver.GetBus(ctx, tasks.Namespace(entityType), w.busCfg)
		if err != nil {
			return fmt.Errorf("worker: resolve bus for %s: %w", entityType, err)
		}
		if err := bus.On(translation.EventTaskScheduled, w.Handle); err != nil {
			return fmt.Errorf("worker: subscribe %s: %w", entityType, err)
		}
		w.buses = append(w.buses, bus)
	}
	return nil
}

// Stop deregisters the worker from every bus it subscribed to.
func (w *Worker) Stop() {
	for _, bus := range w.buses {
		bus.Off(translation.EventTaskScheduled)
	}
	w.buses = nil
}

// Handle processes one scheduled-task event. A nil return acknowledges the
// event; an error leaves it unacknowledged so durable backends redeliver it.
// Errors are returned only while the task remains pending; once a task
// parks as failed the event is spent.
func (w *Worker) Handle(ctx context.Context, evt translation.TaskEvent) error {
	logger := logging.WithTaskContext(w.logger, string(evt.EntityType), evt.EntityID.String(), evt.TargetLocale)

	task, err := w.tasks.GetByID(ctx, evt.TaskID)
	if err != nil {
		if errors.Is(err, translation.ErrTaskNotFound) {
			logger.Warn("event references a missing task", "task_id", evt.TaskID)
			return nil
		}
		return err
	}
	if task.Status != translation.StatusPending {
		logger.Debug("task no longer pending, acknowledging", "status", task.Status)
		return nil
	}

	claimed, err := w.tasks.MarkInProgress(ctx, task.ID, w.now())
	if err != nil {
		if errors.Is(err, translation.ErrTaskNotPending) {
			return nil
		}
		return err
	}

	if err := w.process(ctx, claimed, logger); err != nil {
		return w.recordFailure(ctx, claimed, err, logger)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, task *translation.Task, logger interfaces.Logger) error {
	source, err := w.records.GetSource(ctx, task.EntityType, task.EntityID)
	if err != nil {
		return fmt.Errorf("load source record: %w", err)
	}

	req := generator.Request{
		Kind:         task.EntityType.Kind(),
		SourceLocale: task.SourceLocale,
		TargetLocale: task.TargetLocale,
		Fields:       source.Fields,
	}
	result, err := w.generator.Translate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err := generator.Validate(req, result); err != nil {
		return err
	}

	// Write-time staleness gate: a newer schedule may have reset the task
	// while we were generating. Its own event carries the fresher work;
	// this attempt aborts without touching the record.
	current, err := w.tasks.GetByID(ctx, task.ID)
	if err != nil {
		return err
	}
	if current.SourceVersion != task.SourceVersion {
		logger.Info("task superseded during generation, discarding output",
			"claimed_version", task.SourceVersion, "current_version", current.SourceVersion)
		return nil
	}

	record := &translation.Record{
		EntityType: task.EntityType,
		EntityID:   task.EntityID,
		Locale:     task.TargetLocale,
		Fields:     result.Fields,
		Version:    task.SourceVersion,
	}
	if _, err := w.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("store translation: %w", err)
	}

	if _, err := w.tasks.Complete(ctx, task.ID, task.SourceVersion, w.now()); err != nil {
		var stale *translation.StaleTaskError
		if errors.As(err, &stale) {
			logger.Info("completion raced a newer schedule, yielding",
				"claimed_version", stale.ClaimedVersion, "current_version", stale.CurrentVersion)
			return nil
		}
		return err
	}
	logger.Info("translation completed", "task_id", task.ID, "version", task.SourceVersion)
	return nil
}

// recordFailure applies the retry policy. While the task returns to pending
// the original delivery error propagates, keeping the entry claimable; once
// the task parks as failed the event is acknowledged.
func (w *Worker) recordFailure(ctx context.Context, task *translation.Task, cause error, logger interfaces.Logger) error {
	failed, err := w.tasks.Fail(ctx, task.ID, cause.Error(), w.retryLimit, w.now())
	if err != nil {
		logger.Error("could not record task failure", "task_id", task.ID, "cause", cause, "error", err)
		return err
	}
	if failed.Status == translation.StatusPending {
		logger.Warn("translation attempt failed, task eligible for retry",
			"task_id", task.ID, "retry_count", failed.RetryCount, "error", cause)
		return cause
	}
	logger.Error("translation failed permanently",
		"task_id", task.ID, "retry_count", failed.RetryCount, "error", cause)
	return nil
}
