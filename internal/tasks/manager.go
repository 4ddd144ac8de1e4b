package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-translations/internal/eventbus"
	"github.com/goliatone/go-translations/internal/localeconfig"
	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

// Namespace returns the bus namespace serving one entity type. Each entity
// type gets its own bus so a flood of post translations cannot starve
// category work.
func Namespace(entityType translation.EntityType) string {
	return "translations." + string(entityType)
}

// BusResolver hands out the bus for a namespace. The eventbus Factory
// satisfies it; tests substitute a stub.
type BusResolver interface {
	GetBus(ctx context.Context, namespace string, cfg eventbus.Config) (eventbus.Bus, error)
}

// ScheduleResult summarizes one scheduling pass.
type ScheduleResult struct {
	Targets      []string
	Created      int
	Reset        int
	Unchanged    int
	Emitted      int
	EmitFailures int
}

// Manager owns the scheduling side of the pipeline: it expands a source
// change into per-locale tasks and signals workers through the event bus.
type Manager struct {
	tasks    TaskRepository
	settings localeconfig.Repository
	resolver BusResolver
	busCfg   eventbus.Config
	logger   interfaces.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(newID func() uuid.UUID) ManagerOption {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger interfaces.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a Manager.
func NewManager(tasks TaskRepository, settings localeconfig.Repository, resolver BusResolver, busCfg eventbus.Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		tasks:    tasks,
		settings: settings,
		resolver: resolver,
		busCfg:   busCfg,
		logger:   logging.NoOp(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ScheduleTranslations expands a source-content change into one task per
// enabled target locale and emits a scheduling event for each.
//
// An existing task for the same (entityType, entityID, targetLocale) identity
// is reset in place rather than duplicated, but only when the source version
// actually moved: status returns to pending, the retry counter and error
// clear, and the task adopts the new source version. A repeated call with the
// version already tracked leaves the row untouched, so duplicate edit events
// never regress a completed or parked task; still-pending rows get their
// event re-emitted. A task mid-flight for an older version will fail its
// stale completion check and leave the reset row for the next worker.
//
// An unreadable or empty locale configuration schedules nothing and returns a
// zero result; the caller's write path must not fail because translation
// targets are misconfigured.
func (m *Manager) ScheduleTranslations(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID, sourceLocale string, sourceVersion int64) (ScheduleResult, error) {
	if !entityType.Valid() {
		return ScheduleResult{}, translation.ErrEntityTypeInvalid
	}
	if entityID == uuid.Nil {
		return ScheduleResult{}, translation.ErrEntityIDRequired
	}
	if sourceLocale == "" {
		return ScheduleResult{}, translation.ErrLocaleRequired
	}
	if sourceVersion <= 0 {
		return ScheduleResult{}, translation.ErrSourceVersionInvalid
	}

	targets := m.targetLocales(ctx, sourceLocale)
	result := ScheduleResult{Targets: targets}
	if len(targets) == 0 {
		m.logger.Debug("no target locales enabled, nothing to schedule",
			"entity_type", entityType, "entity_id", entityID)
		return result, nil
	}

	var scheduled []*translation.Task
	for _, locale := range targets {
		task, outcome, err := m.upsertTask(ctx, entityType, entityID, locale, sourceLocale, sourceVersion)
		if err != nil {
			return result, err
		}
		switch outcome {
		case taskCreated:
			result.Created++
		case taskReset:
			result.Reset++
		case taskUnchanged:
			result.Unchanged++
		}
		// Only pending rows get signalled; completed and parked tasks at the
		// current version have nothing left to do.
		if task.Status == translation.StatusPending {
			scheduled = append(scheduled, task)
		}
	}
	if len(scheduled) == 0 {
		return result, nil
	}

	bus, err := m.resolver.GetBus(ctx, Namespace(entityType), m.busCfg)
	if err != nil {
		// Tasks are persisted either way; the reconciliation sweep will
		// re-signal them once the bus recovers.
		m.logger.Error("bus unavailable, scheduled tasks await reconciliation",
			"namespace", Namespace(entityType), "error", err)
		result.EmitFailures = len(scheduled)
		return result, nil
	}

	for _, task := range scheduled {
		if err := bus.Emit(ctx, translation.EventTaskScheduled, translation.NewTaskEvent(task)); err != nil {
			result.EmitFailures++
			m.logger.Error("emit failed for scheduled task",
				"task_id", task.ID, "target_locale", task.TargetLocale, "error", err)
			continue
		}
		result.Emitted++
	}
	return result, nil
}

// RetryTask re-opens a terminal task. Pending and in-progress tasks are not
// retryable; use the scheduler to supersede those.
func (m *Manager) RetryTask(ctx context.Context, taskID uuid.UUID) (*translation.Task, error) {
	task, err := m.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Status.Terminal() {
		return nil, translation.ErrTaskNotRetryable
	}

	now := m.now()
	task.Status = translation.StatusPending
	task.RetryCount = 0
	task.ErrorMessage = nil
	task.StartedAt = nil
	task.CompletedAt = nil
	task.UpdatedAt = now

	stored, err := m.tasks.Save(ctx, task)
	if err != nil {
		return nil, err
	}

	bus, err := m.resolver.GetBus(ctx, Namespace(stored.EntityType), m.busCfg)
	if err != nil {
		m.logger.Error("bus unavailable, retried task awaits reconciliation",
			"task_id", stored.ID, "error", err)
		return stored, nil
	}
	if err := bus.Emit(ctx, translation.EventTaskScheduled, translation.NewTaskEvent(stored)); err != nil {
		m.logger.Error("emit failed for retried task", "task_id", stored.ID, "error", err)
	}
	return stored, nil
}

// targetLocales reads the enabled locale list and strips the source locale.
// Configuration problems degrade to an empty target set.
func (m *Manager) targetLocales(ctx context.Context, sourceLocale string) []string {
	settings, err := m.settings.Get(ctx)
	if err != nil {
		if !errors.Is(err, localeconfig.ErrSettingsNotFound) {
			m.logger.Warn("locale settings unreadable, scheduling nothing", "error", err)
		}
		return nil
	}
	var targets []string
	for _, locale := range localeconfig.NormalizeLocales(settings.EnabledLocales) {
		if localeconfig.SameLocale(locale, sourceLocale) {
			continue
		}
		targets = append(targets, locale)
	}
	return targets
}

type upsertOutcome int

const (
	taskCreated upsertOutcome = iota
	taskReset
	taskUnchanged
)

func (m *Manager) upsertTask(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID, targetLocale, sourceLocale string, sourceVersion int64) (*translation.Task, upsertOutcome, error) {
	now := m.now()
	key := translation.TaskKey{EntityType: entityType, EntityID: entityID, TargetLocale: targetLocale}

	existing, err := m.tasks.GetByKey(ctx, key)
	switch {
	case err == nil:
		if existing.SourceVersion == sourceVersion {
			// The version is already tracked; resetting here would regress a
			// completed or parked task and re-translate current content.
			return existing, taskUnchanged, nil
		}
		existing.SourceLocale = sourceLocale
		existing.SourceVersion = sourceVersion
		existing.Status = translation.StatusPending
		existing.Priority = translation.PriorityNormal
		existing.RetryCount = 0
		existing.ErrorMessage = nil
		existing.StartedAt = nil
		existing.CompletedAt = nil
		existing.UpdatedAt = now
		stored, err := m.tasks.Save(ctx, existing)
		if err != nil {
			return nil, taskReset, err
		}
		return stored, taskReset, nil
	case errors.Is(err, translation.ErrTaskNotFound):
		task := &translation.Task{
			ID:            m.newID(),
			EntityType:    entityType,
			EntityID:      entityID,
			TargetLocale:  targetLocale,
			SourceLocale:  sourceLocale,
			SourceVersion: sourceVersion,
			Status:        translation.StatusPending,
			Priority:      translation.PriorityNormal,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		stored, err := m.tasks.Save(ctx, task)
		if err != nil {
			return nil, taskCreated, err
		}
		return stored, taskCreated, nil
	default:
		return nil, taskUnchanged, err
	}
}
