package tasks

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-translations/internal/eventbus"
	"github.com/goliatone/go-translations/internal/localeconfig"
	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

type recordingBus struct {
	mu      sync.Mutex
	emitted []translation.TaskEvent
	emitErr error
}

func (b *recordingBus) Init(context.Context) error              { return nil }
func (b *recordingBus) On(string, eventbus.Handler) error       { return nil }
func (b *recordingBus) Off(string)                              {}
func (b *recordingBus) Stop() error                             { return nil }
func (b *recordingBus) Emit(_ context.Context, _ string, evt translation.TaskEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.emitErr != nil {
		return b.emitErr
	}
	b.emitted = append(b.emitted, evt)
	return nil
}

func (b *recordingBus) events() []translation.TaskEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.emitted)
}

type stubResolver struct {
	mu         sync.Mutex
	buses      map[string]*recordingBus
	resolveErr error
}

func newStubResolver() *stubResolver {
	return &stubResolver{buses: make(map[string]*recordingBus)}
}

func (r *stubResolver) GetBus(_ context.Context, namespace string, _ eventbus.Config) (eventbus.Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	bus, ok := r.buses[namespace]
	if !ok {
		bus = &recordingBus{}
		r.buses[namespace] = bus
	}
	return bus, nil
}

func (r *stubResolver) bus(namespace string) *recordingBus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buses[namespace]
}

func newTestManager(t *testing.T, locales ...string) (*Manager, *MemoryTaskRepository, *stubResolver) {
	t.Helper()
	repo := NewMemoryTaskRepository()
	settings := localeconfig.NewMemoryRepository()
	if len(locales) > 0 {
		if _, err := settings.Upsert(context.Background(), localeconfig.Settings{
			EnabledLocales: locales,
			DefaultLocale:  locales[0],
		}); err != nil {
			t.Fatalf("seed settings: %v", err)
		}
	}
	resolver := newStubResolver()
	manager := NewManager(repo, settings, resolver, eventbus.DefaultConfig())
	return manager, repo, resolver
}

func TestManagerScheduleCreatesTaskPerTargetLocale(t *testing.T) {
	manager, repo, resolver := newTestManager(t, "en", "es", "fr", "ja")
	ctx := context.Background()
	entityID := uuid.New()

	result, err := manager.ScheduleTranslations(ctx, translation.EntityCategory, entityID, "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if result.Created != 3 || result.Reset != 0 {
		t.Fatalf("expected 3 created, got %+v", result)
	}
	if !slices.Equal(result.Targets, []string{"es", "fr", "ja"}) {
		t.Fatalf("expected source locale excluded, got %v", result.Targets)
	}

	tasksForEntity, err := repo.ListByEntity(ctx, translation.EntityCategory, entityID)
	if err != nil {
		t.Fatalf("ListByEntity() error = %v", err)
	}
	if len(tasksForEntity) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasksForEntity))
	}
	for _, task := range tasksForEntity {
		if task.Status != translation.StatusPending || task.SourceVersion != 1 {
			t.Fatalf("unexpected task %+v", task)
		}
		if task.Priority != translation.PriorityNormal {
			t.Fatalf("expected normal priority, got %s", task.Priority)
		}
	}

	bus := resolver.bus("translations.category")
	if bus == nil {
		t.Fatalf("expected a bus for translations.category")
	}
	if got := len(bus.events()); got != 3 {
		t.Fatalf("expected 3 emitted events, got %d", got)
	}
}

func TestManagerScheduleIsIdempotentAcrossRepeats(t *testing.T) {
	manager, repo, resolver := newTestManager(t, "en", "es")
	ctx := context.Background()
	entityID := uuid.New()

	if _, err := manager.ScheduleTranslations(ctx, translation.EntityTag, entityID, "en", 1); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	result, err := manager.ScheduleTranslations(ctx, translation.EntityTag, entityID, "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if result.Created != 0 || result.Reset != 0 || result.Unchanged != 1 {
		t.Fatalf("expected repeat schedule to leave the task alone, got %+v", result)
	}
	// The pending task is still awaiting a worker, so its event goes out again.
	if got := len(resolver.bus("translations.tag").events()); got != 2 {
		t.Fatalf("expected pending task re-signalled, got %d events", got)
	}

	tasksForEntity, err := repo.ListByEntity(ctx, translation.EntityTag, entityID)
	if err != nil {
		t.Fatalf("ListByEntity() error = %v", err)
	}
	if len(tasksForEntity) != 1 {
		t.Fatalf("expected one live task per locale, got %d", len(tasksForEntity))
	}
}

func TestManagerScheduleSameVersionKeepsCompletedTask(t *testing.T) {
	manager, repo, resolver := newTestManager(t, "en", "es")
	ctx := context.Background()
	entityID := uuid.New()
	now := time.Now().UTC()

	if _, err := manager.ScheduleTranslations(ctx, translation.EntityCategory, entityID, "en", 1); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	task, err := repo.GetByKey(ctx, translation.TaskKey{EntityType: translation.EntityCategory, EntityID: entityID, TargetLocale: "es"})
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if _, err := repo.MarkInProgress(ctx, task.ID, now); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}
	if _, err := repo.Complete(ctx, task.ID, 1, now); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	emittedBefore := len(resolver.bus("translations.category").events())

	// A duplicate edit event arrives carrying the version already translated.
	result, err := manager.ScheduleTranslations(ctx, translation.EntityCategory, entityID, "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if result.Unchanged != 1 || result.Created != 0 || result.Reset != 0 {
		t.Fatalf("expected unchanged task, got %+v", result)
	}

	current, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if current.Status != translation.StatusCompleted {
		t.Fatalf("same-version reschedule regressed status to %s (want completed)", current.Status)
	}
	if current.CompletedAt == nil {
		t.Fatal("expected completion timestamp preserved")
	}
	if got := len(resolver.bus("translations.category").events()); got != emittedBefore {
		t.Fatalf("expected no new events for a completed task, got %d", got-emittedBefore)
	}
}

func TestManagerScheduleSameVersionKeepsParkedTask(t *testing.T) {
	manager, repo, _ := newTestManager(t, "en", "es")
	ctx := context.Background()
	entityID := uuid.New()
	now := time.Now().UTC()

	if _, err := manager.ScheduleTranslations(ctx, translation.EntityBadge, entityID, "en", 3); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	task, err := repo.GetByKey(ctx, translation.TaskKey{EntityType: translation.EntityBadge, EntityID: entityID, TargetLocale: "es"})
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if _, err := repo.MarkInProgress(ctx, task.ID, now); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}
	if _, err := repo.Fail(ctx, task.ID, "boom", 1, now); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	// The same version again: the parked task stays parked for admin retry.
	if _, err := manager.ScheduleTranslations(ctx, translation.EntityBadge, entityID, "en", 3); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	current, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if current.Status != translation.StatusFailed || current.RetryCount != 1 {
		t.Fatalf("expected parked task untouched, got %+v", current)
	}

	// A newer version does reclaim it.
	if _, err := manager.ScheduleTranslations(ctx, translation.EntityBadge, entityID, "en", 4); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	current, err = repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if current.Status != translation.StatusPending || current.RetryCount != 0 || current.SourceVersion != 4 {
		t.Fatalf("expected version bump to reset the task, got %+v", current)
	}
}

func TestManagerScheduleResetsSupersededTask(t *testing.T) {
	manager, repo, _ := newTestManager(t, "en", "es")
	ctx := context.Background()
	entityID := uuid.New()
	now := time.Now().UTC()

	if _, err := manager.ScheduleTranslations(ctx, translation.EntityTopic, entityID, "en", 1); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	existing, err := repo.GetByKey(ctx, translation.TaskKey{EntityType: translation.EntityTopic, EntityID: entityID, TargetLocale: "es"})
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if _, err := repo.MarkInProgress(ctx, existing.ID, now); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}
	if _, err := repo.Fail(ctx, existing.ID, "boom", 1, now); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	// A new source version arrives; the failed task is reclaimed in place.
	if _, err := manager.ScheduleTranslations(ctx, translation.EntityTopic, entityID, "en", 2); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}

	reset, err := repo.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if reset.Status != translation.StatusPending {
		t.Fatalf("expected reset to pending, got %s", reset.Status)
	}
	if reset.RetryCount != 0 || reset.ErrorMessage != nil {
		t.Fatalf("expected retry state cleared, got %+v", reset)
	}
	if reset.SourceVersion != 2 {
		t.Fatalf("expected source version 2, got %d", reset.SourceVersion)
	}
}

func TestManagerScheduleNoConfigIsNoOp(t *testing.T) {
	manager, repo, resolver := newTestManager(t)
	ctx := context.Background()
	entityID := uuid.New()

	result, err := manager.ScheduleTranslations(ctx, translation.EntityBadge, entityID, "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if len(result.Targets) != 0 || result.Created != 0 {
		t.Fatalf("expected no-op result, got %+v", result)
	}

	tasksForEntity, err := repo.ListByEntity(ctx, translation.EntityBadge, entityID)
	if err != nil {
		t.Fatalf("ListByEntity() error = %v", err)
	}
	if len(tasksForEntity) != 0 {
		t.Fatalf("expected no tasks, got %d", len(tasksForEntity))
	}
	if resolver.bus("translations.badge") != nil {
		t.Fatalf("expected no bus resolution without targets")
	}
}

func TestManagerScheduleOnlySourceLocaleEnabledIsNoOp(t *testing.T) {
	manager, _, resolver := newTestManager(t, "en")
	result, err := manager.ScheduleTranslations(context.Background(), translation.EntityTag, uuid.New(), "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if len(result.Targets) != 0 {
		t.Fatalf("expected empty target set, got %v", result.Targets)
	}
	if resolver.bus("translations.tag") != nil {
		t.Fatalf("expected no bus resolution without targets")
	}
}

func TestManagerScheduleValidatesInput(t *testing.T) {
	manager, _, _ := newTestManager(t, "en", "es")
	ctx := context.Background()

	cases := []struct {
		name       string
		entityType translation.EntityType
		entityID   uuid.UUID
		locale     string
		version    int64
		want       error
	}{
		{"bad entity type", "article", uuid.New(), "en", 1, translation.ErrEntityTypeInvalid},
		{"nil entity id", translation.EntityTag, uuid.Nil, "en", 1, translation.ErrEntityIDRequired},
		{"missing locale", translation.EntityTag, uuid.New(), "", 1, translation.ErrLocaleRequired},
		{"zero version", translation.EntityTag, uuid.New(), "en", 0, translation.ErrSourceVersionInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.ScheduleTranslations(ctx, tc.entityType, tc.entityID, tc.locale, tc.version); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestManagerScheduleToleratesEmitFailure(t *testing.T) {
	manager, repo, resolver := newTestManager(t, "en", "es", "fr")
	ctx := context.Background()
	entityID := uuid.New()

	// Resolve the buses first so we can inject the failure.
	bus, err := resolver.GetBus(ctx, "translations.post", eventbus.DefaultConfig())
	if err != nil {
		t.Fatalf("GetBus() error = %v", err)
	}
	bus.(*recordingBus).emitErr = &eventbus.TransportError{Op: "emit", Err: errors.New("broker down")}

	result, err := manager.ScheduleTranslations(ctx, translation.EntityPost, entityID, "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if result.Created != 2 || result.EmitFailures != 2 || result.Emitted != 0 {
		t.Fatalf("expected persisted tasks with emit failures, got %+v", result)
	}

	// Tasks survive for the reconciliation sweep to re-signal.
	pending, err := repo.ListPendingBefore(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ListPendingBefore() error = %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(pending))
	}
}

func TestManagerScheduleToleratesResolverFailure(t *testing.T) {
	manager, repo, resolver := newTestManager(t, "en", "es")
	resolver.resolveErr = errors.New("redis unreachable")
	ctx := context.Background()

	result, err := manager.ScheduleTranslations(ctx, translation.EntityCategory, uuid.New(), "en", 1)
	if err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	if result.Created != 1 || result.EmitFailures != 1 {
		t.Fatalf("expected task persisted despite bus outage, got %+v", result)
	}

	pending, err := repo.ListPendingBefore(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ListPendingBefore() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected pending task for reconciliation, got %d", len(pending))
	}
}

func TestManagerRetryTask(t *testing.T) {
	manager, repo, resolver := newTestManager(t, "en", "es")
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := manager.ScheduleTranslations(ctx, translation.EntityTag, uuid.New(), "en", 1); err != nil {
		t.Fatalf("ScheduleTranslations() error = %v", err)
	}
	pending, err := repo.ListPendingBefore(ctx, now.Add(time.Minute), 1)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending task, got %v %v", pending, err)
	}
	task := pending[0]

	// Pending tasks are not admin-retryable.
	if _, err := manager.RetryTask(ctx, task.ID); !errors.Is(err, translation.ErrTaskNotRetryable) {
		t.Fatalf("expected ErrTaskNotRetryable, got %v", err)
	}

	if _, err := repo.MarkInProgress(ctx, task.ID, now); err != nil {
		t.Fatalf("MarkInProgress() error = %v", err)
	}
	if _, err := repo.Fail(ctx, task.ID, "boom", 1, now); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	before := len(resolver.bus("translations.tag").events())
	retried, err := manager.RetryTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("RetryTask() error = %v", err)
	}
	if retried.Status != translation.StatusPending || retried.RetryCount != 0 || retried.ErrorMessage != nil {
		t.Fatalf("expected clean pending task, got %+v", retried)
	}
	if got := len(resolver.bus("translations.tag").events()); got != before+1 {
		t.Fatalf("expected retry to emit, got %d events", got)
	}

	if _, err := manager.RetryTask(ctx, uuid.New()); !errors.Is(err, translation.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}
