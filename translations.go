// Package translations wires the content translation pipeline: locale
// settings, task scheduling, the event bus, and the worker that turns
// scheduled tasks into translated records.
package translations

import (
	"context"
	"sync"

	"github.com/goliatone/go-translations/internal/eventbus"
	"github.com/goliatone/go-translations/internal/generator"
	"github.com/goliatone/go-translations/internal/localeconfig"
	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/internal/tasks"
	"github.com/goliatone/go-translations/internal/worker"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/uptrace/bun"
)

// Generator re-exports the translation backend contract.
type Generator = generator.Generator

// GeneratorRequest re-exports the backend request payload.
type GeneratorRequest = generator.Request

// GeneratorResult re-exports the backend response payload.
type GeneratorResult = generator.Result

// GeneratorFunc adapts a plain function to the Generator contract.
type GeneratorFunc = generator.Func

// StaticGenerator re-exports the deterministic pseudo-translator.
type StaticGenerator = generator.StaticGenerator

// TaskRepository re-exports the task store contract.
type TaskRepository = tasks.TaskRepository

// RecordRepository re-exports the record store contract.
type RecordRepository = tasks.RecordRepository

// LocaleSettings re-exports the locale settings payload.
type LocaleSettings = localeconfig.Settings

// Module is the runtime façade. Construct it with New, call Start to attach
// workers, and Stop to release bus resources.
type Module struct {
	config   Config
	provider interfaces.LoggerProvider

	factory    *eventbus.Factory
	settings   localeconfig.Repository
	taskRepo   tasks.TaskRepository
	recordRepo tasks.RecordRepository
	manager    *tasks.Manager
	worker     *worker.Worker
	reconciler *worker.Reconciler

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option overrides a Module collaborator.
type Option func(*moduleDeps)

type moduleDeps struct {
	db        *bun.DB
	provider  interfaces.LoggerProvider
	generator generator.Generator
	factory   *eventbus.Factory
	settings  localeconfig.Repository
}

// WithDB selects Bun-backed persistence. Without it the module runs on
// in-memory stores.
func WithDB(db *bun.DB) Option {
	return func(d *moduleDeps) { d.db = db }
}

// WithLoggerProvider wires structured logging through the host's provider.
func WithLoggerProvider(provider interfaces.LoggerProvider) Option {
	return func(d *moduleDeps) { d.provider = provider }
}

// WithGenerator sets the translation backend. Defaults to the deterministic
// static generator, which is only useful for tests and demos.
func WithGenerator(gen generator.Generator) Option {
	return func(d *moduleDeps) {
		if gen != nil {
			d.generator = gen
		}
	}
}

// WithBusFactory shares a bus factory across modules.
func WithBusFactory(factory *eventbus.Factory) Option {
	return func(d *moduleDeps) {
		if factory != nil {
			d.factory = factory
		}
	}
}

// WithLocaleSettings overrides the locale settings repository.
func WithLocaleSettings(repo localeconfig.Repository) Option {
	return func(d *moduleDeps) {
		if repo != nil {
			d.settings = repo
		}
	}
}

// New constructs and wires a Module.
func New(cfg Config, opts ...Option) (*Module, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := &moduleDeps{generator: generator.StaticGenerator{}}
	for _, opt := range opts {
		opt(deps)
	}

	factory := deps.factory
	if factory == nil {
		factory = eventbus.NewFactory(eventbus.FactoryWithLogger(logging.BusLogger(deps.provider)))
	}

	settings := deps.settings
	var taskRepo tasks.TaskRepository
	var recordRepo tasks.RecordRepository
	if deps.db != nil {
		if settings == nil {
			settings = localeconfig.NewBunRepository(deps.db)
		}
		taskRepo = tasks.NewBunTaskRepository(deps.db)
		recordRepo = tasks.NewBunRecordRepository(deps.db)
	} else {
		if settings == nil {
			settings = localeconfig.NewMemoryRepository()
		}
		taskRepo = tasks.NewMemoryTaskRepository()
		recordRepo = tasks.NewMemoryRecordRepository()
	}

	if len(cfg.Locales) > 0 {
		if err := seedLocales(settings, cfg); err != nil {
			return nil, err
		}
	}

	manager := tasks.NewManager(taskRepo, settings, factory, cfg.Bus,
		tasks.WithLogger(logging.TasksLogger(deps.provider)))

	w := worker.New(taskRepo, recordRepo, deps.generator, factory, cfg.Bus,
		worker.WithRetryLimit(cfg.RetryLimit),
		worker.WithLogger(logging.WorkerLogger(deps.provider)))

	reconciler := worker.NewReconciler(taskRepo, factory, cfg.Bus,
		worker.SweepEvery(cfg.ReconcileInterval),
		worker.PendingOlderThan(cfg.PendingAge),
		worker.ReconcilerLogger(logging.WorkerLogger(deps.provider)))

	return &Module{
		config:     cfg,
		provider:   deps.provider,
		factory:    factory,
		settings:   settings,
		taskRepo:   taskRepo,
		recordRepo: recordRepo,
		manager:    manager,
		worker:     w,
		reconciler: reconciler,
	}, nil
}

func seedLocales(settings localeconfig.Repository, cfg Config) error {
	ctx := context.Background()
	if _, err := settings.Get(ctx); err == nil {
		return nil
	}
	_, err := settings.Upsert(ctx, localeconfig.Settings{
		EnabledLocales: cfg.Locales,
		DefaultLocale:  cfg.DefaultLocale,
	})
	return err
}

// Start subscribes the worker on every entity namespace and launches the
// reconciliation loop. Idempotent while running.
func (m *Module) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}
	if err := m.worker.Start(ctx); err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() { _ = m.reconciler.Run(loopCtx) }()
	return nil
}

// Stop detaches the worker, halts reconciliation, and releases every bus.
func (m *Module) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.worker.Stop()
	return m.factory.ClearAll()
}

// Manager returns the scheduling API.
func (m *Module) Manager() *tasks.Manager { return m.manager }

// Worker returns the task consumer.
func (m *Module) Worker() *worker.Worker { return m.worker }

// Reconciler returns the sweep runner for hosts that drive it themselves.
func (m *Module) Reconciler() *worker.Reconciler { return m.reconciler }

// Tasks returns the task store.
func (m *Module) Tasks() TaskRepository { return m.taskRepo }

// Records returns the translation record store.
func (m *Module) Records() RecordRepository { return m.recordRepo }

// LocaleSettingsRepo returns the locale settings store.
func (m *Module) LocaleSettingsRepo() localeconfig.Repository { return m.settings }

// Buses returns the bus factory.
func (m *Module) Buses() *eventbus.Factory { return m.factory }
