package translations

import (
	"context"

	"github.com/goliatone/go-translations/internal/localeconfig"
	"github.com/goliatone/go-translations/translation"
	"github.com/uptrace/bun"
)

// CreateTables provisions the pipeline's schema: task and record tables with
// their identity indexes, plus the locale settings table. Safe to call
// repeatedly; every statement is IF NOT EXISTS.
func CreateTables(ctx context.Context, db *bun.DB) error {
	if _, err := db.NewCreateTable().Model((*translation.Task)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateIndex().
		Model((*translation.Task)(nil)).
		Index("idx_translation_tasks_identity").
		Unique().
		Column("entity_type", "entity_id", "target_locale").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateIndex().
		Model((*translation.Task)(nil)).
		Index("idx_translation_tasks_status").
		Column("status", "updated_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	if _, err := db.NewCreateTable().Model((*translation.Record)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateIndex().
		Model((*translation.Record)(nil)).
		Index("idx_translation_records_identity").
		Unique().
		Column("entity_type", "entity_id", "locale").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	return localeconfig.CreateTable(ctx, db)
}
