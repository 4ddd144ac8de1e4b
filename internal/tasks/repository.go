package tasks

import (
	"context"
	"time"

	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

// TaskRepository persists translation tasks. Every mutation is a single
// atomic operation keyed by the task's identity, so a scheduler resetting a
// task and a worker completing a pre-reset claim can never lose each other's
// writes.
type TaskRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*translation.Task, error)
	GetByKey(ctx context.Context, key translation.TaskKey) (*translation.Task, error)
	ListByEntity(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID) ([]*translation.Task, error)
	// ListPendingBefore returns pending tasks not touched since the cutoff,
	// oldest first. The reconciliation sweep uses it to re-signal tasks whose
	// emit was lost.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*translation.Task, error)

	// Save upserts by the (entityType, entityID, targetLocale) identity. The
	// last writer's sourceVersion wins; concurrent or repeated calls never
	// yield two live rows for the same tuple.
	Save(ctx context.Context, task *translation.Task) (*translation.Task, error)

	// MarkInProgress claims a pending task. Returns ErrTaskNotPending when
	// the task is in any other state, which makes redelivered events no-ops.
	MarkInProgress(ctx context.Context, id uuid.UUID, at time.Time) (*translation.Task, error)

	// Complete finishes an in-progress task, but only when the stored
	// sourceVersion still matches the version the worker claimed. A mismatch
	// returns a StaleTaskError and leaves the row for the fresher schedule.
	Complete(ctx context.Context, id uuid.UUID, sourceVersion int64, at time.Time) (*translation.Task, error)

	// Fail records a processing error on an in-progress task, incrementing
	// retryCount. While retryCount stays below retryLimit the task returns to
	// pending (eligible for redelivery); at the limit it parks as failed
	// until an administrative retry.
	Fail(ctx context.Context, id uuid.UUID, message string, retryLimit int, at time.Time) (*translation.Task, error)
}

// RecordRepository persists materialized translations. Upsert is keyed by
// (entityType, entityID, locale); at most one record exists per tuple.
type RecordRepository interface {
	Get(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID, locale string) (*translation.Record, error)
	GetSource(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID) (*translation.Record, error)
	ListByEntity(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID) ([]*translation.Record, error)
	// Upsert writes a record unless the stored row already carries a newer
	// version. A write that lost the race to a fresher translation is
	// dropped and the stored row returned, so a stale worker can never
	// clobber current content.
	Upsert(ctx context.Context, record *translation.Record) (*translation.Record, error)
}
