package tasks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

// MemoryTaskRepository is a deterministic in-memory task store suitable for
// tests and single-process deployments.
type MemoryTaskRepository struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*translation.Task
	byKey map[taskIndexKey]uuid.UUID
}

type taskIndexKey struct {
	entityType translation.EntityType
	entityID   uuid.UUID
	locale     string
}

func indexKey(entityType translation.EntityType, entityID uuid.UUID, locale string) taskIndexKey {
	return taskIndexKey{
		entityType: entityType,
		entityID:   entityID,
		locale:     strings.ToLower(strings.TrimSpace(locale)),
	}
}

// NewMemoryTaskRepository constructs an empty in-memory task store.
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		byID:  make(map[uuid.UUID]*translation.Task),
		byKey: make(map[taskIndexKey]uuid.UUID),
	}
}

func (r *MemoryTaskRepository) GetByID(_ context.Context, id uuid.UUID) (*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.byID[id]
	if !ok {
		return nil, translation.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

func (r *MemoryTaskRepository) GetByKey(_ context.Context, key translation.TaskKey) (*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[indexKey(key.EntityType, key.EntityID, key.TargetLocale)]
	if !ok {
		return nil, translation.ErrTaskNotFound
	}
	return cloneTask(r.byID[id]), nil
}

func (r *MemoryTaskRepository) ListByEntity(_ context.Context, entityType translation.EntityType, entityID uuid.UUID) ([]*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*translation.Task
	for _, task := range r.byID {
		if task.EntityType == entityType && task.EntityID == entityID {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetLocale < out[j].TargetLocale })
	return out, nil
}

func (r *MemoryTaskRepository) ListPendingBefore(_ context.Context, cutoff time.Time, limit int) ([]*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*translation.Task
	for _, task := range r.byID {
		if task.Status == translation.StatusPending && !task.UpdatedAt.After(cutoff) {
			out = append(out, cloneTask(task))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryTaskRepository) Save(_ context.Context, task *translation.Task) (*translation.Task, error) {
	if task == nil {
		return nil, translation.ErrTaskNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := indexKey(task.EntityType, task.EntityID, task.TargetLocale)
	if existingID, ok := r.byKey[key]; ok && existingID != task.ID {
		// Upsert by identity: an insert racing an existing row converges on
		// the stored row's id.
		task.ID = existingID
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}

	stored := cloneTask(task)
	r.byID[stored.ID] = stored
	r.byKey[key] = stored.ID
	return cloneTask(stored), nil
}

func (r *MemoryTaskRepository) MarkInProgress(_ context.Context, id uuid.UUID, at time.Time) (*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.byID[id]
	if !ok {
		return nil, translation.ErrTaskNotFound
	}
	if task.Status != translation.StatusPending {
		return nil, translation.ErrTaskNotPending
	}
	task.Status = translation.StatusInProgress
	started := at
	task.StartedAt = &started
	task.UpdatedAt = at
	return cloneTask(task), nil
}

func (r *MemoryTaskRepository) Complete(_ context.Context, id uuid.UUID, sourceVersion int64, at time.Time) (*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.byID[id]
	if !ok {
		return nil, translation.ErrTaskNotFound
	}
	if task.SourceVersion != sourceVersion {
		return nil, &translation.StaleTaskError{
			TaskID:         id,
			ClaimedVersion: sourceVersion,
			CurrentVersion: task.SourceVersion,
		}
	}
	if task.Status != translation.StatusInProgress {
		return nil, &translation.StatusTransitionError{TaskID: id, From: task.Status, To: translation.StatusCompleted}
	}
	task.Status = translation.StatusCompleted
	completed := at
	task.CompletedAt = &completed
	task.ErrorMessage = nil
	task.UpdatedAt = at
	return cloneTask(task), nil
}

func (r *MemoryTaskRepository) Fail(_ context.Context, id uuid.UUID, message string, retryLimit int, at time.Time) (*translation.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.byID[id]
	if !ok {
		return nil, translation.ErrTaskNotFound
	}
	if task.Status != translation.StatusInProgress {
		return nil, &translation.StatusTransitionError{TaskID: id, From: task.Status, To: translation.StatusFailed}
	}
	task.RetryCount++
	task.ErrorMessage = &message
	if retryLimit > 0 && task.RetryCount < retryLimit {
		task.Status = translation.StatusPending
		task.StartedAt = nil
	} else {
		task.Status = translation.StatusFailed
	}
	task.UpdatedAt = at
	return cloneTask(task), nil
}

func cloneTask(task *translation.Task) *translation.Task {
	if task == nil {
		return nil
	}
	copied := *task
	if task.ErrorMessage != nil {
		msg := *task.ErrorMessage
		copied.ErrorMessage = &msg
	}
	if task.StartedAt != nil {
		at := *task.StartedAt
		copied.StartedAt = &at
	}
	if task.CompletedAt != nil {
		at := *task.CompletedAt
		copied.CompletedAt = &at
	}
	return &copied
}

// MemoryRecordRepository is an in-memory translation record store.
type MemoryRecordRepository struct {
	mu      sync.Mutex
	records map[taskIndexKey]*translation.Record
}

// NewMemoryRecordRepository constructs an empty in-memory record store.
func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{
		records: make(map[taskIndexKey]*translation.Record),
	}
}

func (r *MemoryRecordRepository) Get(_ context.Context, entityType translation.EntityType, entityID uuid.UUID, locale string) (*translation.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[indexKey(entityType, entityID, locale)]
	if !ok {
		return nil, translation.ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

func (r *MemoryRecordRepository) GetSource(_ context.Context, entityType translation.EntityType, entityID uuid.UUID) (*translation.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.EntityType == entityType && record.EntityID == entityID && record.IsSource {
			return cloneRecord(record), nil
		}
	}
	return nil, translation.ErrRecordNotFound
}

func (r *MemoryRecordRepository) ListByEntity(_ context.Context, entityType translation.EntityType, entityID uuid.UUID) ([]*translation.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*translation.Record
	for _, record := range r.records {
		if record.EntityType == entityType && record.EntityID == entityID {
			out = append(out, cloneRecord(record))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Locale < out[j].Locale })
	return out, nil
}

func (r *MemoryRecordRepository) Upsert(_ context.Context, record *translation.Record) (*translation.Record, error) {
	if record == nil {
		return nil, translation.ErrRecordNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := indexKey(record.EntityType, record.EntityID, record.Locale)
	if existing, ok := r.records[key]; ok {
		if record.Version < existing.Version {
			// A fresher translation already landed; drop the stale write.
			return cloneRecord(existing), nil
		}
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	stored := cloneRecord(record)
	r.records[key] = stored
	return cloneRecord(stored), nil
}

func cloneRecord(record *translation.Record) *translation.Record {
	if record == nil {
		return nil
	}
	copied := *record
	if record.Fields != nil {
		fields := make(map[string]any, len(record.Fields))
		for k, v := range record.Fields {
			fields[k] = v
		}
		copied.Fields = fields
	}
	return &copied
}
