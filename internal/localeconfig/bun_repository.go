package localeconfig

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// BunRepository persists locale settings using a Bun-backed database. The
// enabled locale list is stored as a JSON-encoded array so hosts can edit it
// through generic settings tooling; unparseable values degrade to zero targets.
type BunRepository struct {
	db          *bun.DB
	broadcaster *changeBroadcaster
}

// NewBunRepository constructs a Bun-backed repository.
func NewBunRepository(db *bun.DB) *BunRepository {
	return &BunRepository{
		db:          db,
		broadcaster: newChangeBroadcaster(),
	}
}

// Get returns the persisted locale settings.
func (r *BunRepository) Get(ctx context.Context) (Settings, error) {
	if r.db == nil {
		return Settings{}, errors.New("localeconfig: bun repository requires a database")
	}
	var model settingsModel
	if err := r.db.NewSelect().Model(&model).Where("id = ?", 1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Settings{}, ErrSettingsNotFound
		}
		return Settings{}, err
	}
	return modelToSettings(&model), nil
}

// Upsert creates or updates the persisted locale settings.
func (r *BunRepository) Upsert(ctx context.Context, settings Settings) (Settings, error) {
	if r.db == nil {
		return Settings{}, errors.New("localeconfig: bun repository requires a database")
	}

	var existing settingsModel
	err := r.db.NewSelect().Model(&existing).Where("id = ?", 1).Scan(ctx)
	created := false
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			created = true
		} else {
			return Settings{}, err
		}
	}

	now := time.Now().UTC()
	model := modelFromSettings(settings)
	model.ID = 1
	model.UpdatedAt = now

	if created {
		if _, err := r.db.NewInsert().Model(&model).Exec(ctx); err != nil {
			return Settings{}, err
		}
	} else {
		if _, err := r.db.NewUpdate().
			Model(&model).
			Column("enabled_locales", "default_locale", "updated_at").
			WherePK().
			Exec(ctx); err != nil {
			return Settings{}, err
		}
	}

	stored, err := r.Get(ctx)
	if err != nil {
		return Settings{}, err
	}

	eventType := ChangeUpdated
	if created {
		eventType = ChangeCreated
	}
	r.broadcaster.Broadcast(newChangeEvent(eventType, stored))
	return stored, nil
}

// Delete clears persisted settings.
func (r *BunRepository) Delete(ctx context.Context) error {
	if r.db == nil {
		return errors.New("localeconfig: bun repository requires a database")
	}
	var model settingsModel
	err := r.db.NewSelect().Model(&model).Where("id = ?", 1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSettingsNotFound
		}
		return err
	}
	if _, err := r.db.NewDelete().Model(&model).WherePK().Exec(ctx); err != nil {
		return err
	}
	r.broadcaster.Broadcast(newChangeEvent(ChangeDeleted, Settings{}))
	return nil
}

// Subscribe delivers change events until the context is cancelled.
func (r *BunRepository) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	return r.broadcaster.Subscribe(ctx)
}

type settingsModel struct {
	bun.BaseModel `bun:"table:translation_locale_settings"`

	ID             int       `bun:",pk"`
	EnabledLocales string    `bun:"enabled_locales"`
	DefaultLocale  string    `bun:"default_locale"`
	UpdatedAt      time.Time `bun:"updated_at"`
}

func modelFromSettings(settings Settings) settingsModel {
	return settingsModel{
		EnabledLocales: EncodeLocales(settings.EnabledLocales),
		DefaultLocale:  settings.DefaultLocale,
	}
}

func modelToSettings(model *settingsModel) Settings {
	if model == nil {
		return Settings{}
	}
	return Settings{
		EnabledLocales: ParseLocales(model.EnabledLocales),
		DefaultLocale:  model.DefaultLocale,
	}
}

// CreateTable provisions the settings table. Kept alongside the model so
// schema and struct evolve together.
func CreateTable(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*settingsModel)(nil)).IfNotExists().Exec(ctx)
	return err
}
