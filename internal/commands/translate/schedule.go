// Package translatecmd exposes the translation pipeline's operations as
// go-command messages so hosts can route them through their own dispatchers.
package translatecmd

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-translations/internal/commands"
	"github.com/goliatone/go-translations/internal/tasks"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

const scheduleMessageType = "translations.task.schedule"

// ScheduleTranslationsCommand requests translation tasks for a changed
// source record.
type ScheduleTranslationsCommand struct {
	EntityType    translation.EntityType `json:"entity_type"`
	EntityID      uuid.UUID              `json:"entity_id"`
	SourceLocale  string                 `json:"source_locale"`
	SourceVersion int64                  `json:"source_version"`
}

// Type implements command.Message.
func (ScheduleTranslationsCommand) Type() string { return scheduleMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m ScheduleTranslationsCommand) Validate() error {
	errs := validation.Errors{}
	if !m.EntityType.Valid() {
		errs["entity_type"] = validation.NewError("translations.task.schedule.entity_type_invalid", "entity_type is not recognized")
	}
	if m.EntityID == uuid.Nil {
		errs["entity_id"] = validation.NewError("translations.task.schedule.entity_id_required", "entity_id is required")
	}
	if m.SourceLocale == "" {
		errs["source_locale"] = validation.NewError("translations.task.schedule.source_locale_required", "source_locale is required")
	}
	if m.SourceVersion <= 0 {
		errs["source_version"] = validation.NewError("translations.task.schedule.source_version_invalid", "source_version must be greater than zero")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ScheduleTranslationsHandler expands scheduling requests through the task manager.
type ScheduleTranslationsHandler struct {
	inner *commands.Handler[ScheduleTranslationsCommand]
}

// NewScheduleTranslationsHandler constructs a handler wired to the provided manager.
func NewScheduleTranslationsHandler(manager *tasks.Manager, logger interfaces.Logger, opts ...commands.HandlerOption[ScheduleTranslationsCommand]) *ScheduleTranslationsHandler {
	exec := func(ctx context.Context, msg ScheduleTranslationsCommand) error {
		_, err := manager.ScheduleTranslations(ctx, msg.EntityType, msg.EntityID, msg.SourceLocale, msg.SourceVersion)
		return err
	}

	handlerOpts := []commands.HandlerOption[ScheduleTranslationsCommand]{
		commands.WithLogger[ScheduleTranslationsCommand](logger),
		commands.WithOperation[ScheduleTranslationsCommand]("translations.schedule"),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &ScheduleTranslationsHandler{
		inner: commands.NewHandler[ScheduleTranslationsCommand](exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[ScheduleTranslationsCommand].Execute.
func (h *ScheduleTranslationsHandler) Execute(ctx context.Context, msg ScheduleTranslationsCommand) error {
	return h.inner.Execute(ctx, msg)
}
