package tasks

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunTaskRepository persists translation tasks with Bun. Claim, complete and
// fail are expressed as guarded UPDATEs so two workers racing over the same
// row resolve through the database instead of application locks.
type BunTaskRepository struct {
	db *bun.DB
}

// NewBunTaskRepository constructs a Bun-backed task repository.
func NewBunTaskRepository(db *bun.DB) *BunTaskRepository {
	return &BunTaskRepository{db: db}
}

func (r *BunTaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*translation.Task, error) {
	task := new(translation.Task)
	if err := r.db.NewSelect().Model(task).Where("tt.id = ?", id).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, translation.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *BunTaskRepository) GetByKey(ctx context.Context, key translation.TaskKey) (*translation.Task, error) {
	task := new(translation.Task)
	err := r.db.NewSelect().
		Model(task).
		Where("tt.entity_type = ?", key.EntityType).
		Where("tt.entity_id = ?", key.EntityID).
		Where("lower(tt.target_locale) = lower(?)", key.TargetLocale).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, translation.ErrTaskNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *BunTaskRepository) ListByEntity(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID) ([]*translation.Task, error) {
	var out []*translation.Task
	err := r.db.NewSelect().
		Model(&out).
		Where("tt.entity_type = ?", entityType).
		Where("tt.entity_id = ?", entityID).
		Order("target_locale ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BunTaskRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]*translation.Task, error) {
	var out []*translation.Task
	q := r.db.NewSelect().
		Model(&out).
		Where("tt.status = ?", translation.StatusPending).
		Where("tt.updated_at <= ?", cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BunTaskRepository) Save(ctx context.Context, task *translation.Task) (*translation.Task, error) {
	if task == nil {
		return nil, translation.ErrTaskNotFound
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	_, err := r.db.NewInsert().
		Model(task).
		On("CONFLICT (entity_type, entity_id, target_locale) DO UPDATE").
		Set("source_locale = EXCLUDED.source_locale").
		Set("source_version = EXCLUDED.source_version").
		Set("status = EXCLUDED.status").
		Set("priority = EXCLUDED.priority").
		Set("retry_count = EXCLUDED.retry_count").
		Set("error_message = EXCLUDED.error_message").
		Set("started_at = EXCLUDED.started_at").
		Set("completed_at = EXCLUDED.completed_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return r.GetByKey(ctx, task.Key())
}

func (r *BunTaskRepository) MarkInProgress(ctx context.Context, id uuid.UUID, at time.Time) (*translation.Task, error) {
	res, err := r.db.NewUpdate().
		Model((*translation.Task)(nil)).
		Set("status = ?", translation.StatusInProgress).
		Set("started_at = ?", at).
		Set("updated_at = ?", at).
		Where("tt.id = ?", id).
		Where("tt.status = ?", translation.StatusPending).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, translation.ErrTaskNotPending
	}
	return r.GetByID(ctx, id)
}

func (r *BunTaskRepository) Complete(ctx context.Context, id uuid.UUID, sourceVersion int64, at time.Time) (*translation.Task, error) {
	res, err := r.db.NewUpdate().
		Model((*translation.Task)(nil)).
		Set("status = ?", translation.StatusCompleted).
		Set("completed_at = ?", at).
		Set("error_message = NULL").
		Set("updated_at = ?", at).
		Where("tt.id = ?", id).
		Where("tt.status = ?", translation.StatusInProgress).
		Where("tt.source_version = ?", sourceVersion).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.SourceVersion != sourceVersion {
			return nil, &translation.StaleTaskError{
				TaskID:         id,
				ClaimedVersion: sourceVersion,
				CurrentVersion: current.SourceVersion,
			}
		}
		return nil, &translation.StatusTransitionError{TaskID: id, From: current.Status, To: translation.StatusCompleted}
	}
	return r.GetByID(ctx, id)
}

func (r *BunTaskRepository) Fail(ctx context.Context, id uuid.UUID, message string, retryLimit int, at time.Time) (*translation.Task, error) {
	// One guarded statement per outcome; whichever matches the row wins.
	retry := r.db.NewUpdate().
		Model((*translation.Task)(nil)).
		Set("status = ?", translation.StatusPending).
		Set("retry_count = retry_count + 1").
		Set("error_message = ?", message).
		Set("started_at = NULL").
		Set("updated_at = ?", at).
		Where("tt.id = ?", id).
		Where("tt.status = ?", translation.StatusInProgress).
		Where("? > 0", retryLimit).
		Where("tt.retry_count + 1 < ?", retryLimit)
	res, err := retry.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return r.GetByID(ctx, id)
	}

	res, err = r.db.NewUpdate().
		Model((*translation.Task)(nil)).
		Set("status = ?", translation.StatusFailed).
		Set("retry_count = retry_count + 1").
		Set("error_message = ?", message).
		Set("updated_at = ?", at).
		Where("tt.id = ?", id).
		Where("tt.status = ?", translation.StatusInProgress).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		current, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &translation.StatusTransitionError{TaskID: id, From: current.Status, To: translation.StatusFailed}
	}
	return r.GetByID(ctx, id)
}

// BunRecordRepository persists materialized translations with Bun.
type BunRecordRepository struct {
	db *bun.DB
}

// NewBunRecordRepository constructs a Bun-backed record repository.
func NewBunRecordRepository(db *bun.DB) *BunRecordRepository {
	return &BunRecordRepository{db: db}
}

func (r *BunRecordRepository) Get(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID, locale string) (*translation.Record, error) {
	record := new(translation.Record)
	err := r.db.NewSelect().
		Model(record).
		Where("tr.entity_type = ?", entityType).
		Where("tr.entity_id = ?", entityID).
		Where("lower(tr.locale) = lower(?)", locale).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, translation.ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *BunRecordRepository) GetSource(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID) (*translation.Record, error) {
	record := new(translation.Record)
	err := r.db.NewSelect().
		Model(record).
		Where("tr.entity_type = ?", entityType).
		Where("tr.entity_id = ?", entityID).
		Where("tr.is_source = ?", true).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, translation.ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *BunRecordRepository) ListByEntity(ctx context.Context, entityType translation.EntityType, entityID uuid.UUID) ([]*translation.Record, error) {
	var out []*translation.Record
	err := r.db.NewSelect().
		Model(&out).
		Where("tr.entity_type = ?", entityType).
		Where("tr.entity_id = ?", entityID).
		Order("locale ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BunRecordRepository) Upsert(ctx context.Context, record *translation.Record) (*translation.Record, error) {
	if record == nil {
		return nil, translation.ErrRecordNotFound
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := r.db.NewInsert().
		Model(record).
		On("CONFLICT (entity_type, entity_id, locale) DO UPDATE").
		Set("fields = EXCLUDED.fields").
		Set("is_source = EXCLUDED.is_source").
		Set("version = EXCLUDED.version").
		Set("updated_at = EXCLUDED.updated_at").
		// Stale writers lose: the conflict update only fires when the
		// incoming version is at least the stored one.
		Where("EXCLUDED.version >= version").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, record.EntityType, record.EntityID, record.Locale)
}
