package translatecmd

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-translations/internal/commands"
	"github.com/goliatone/go-translations/internal/tasks"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/google/uuid"
)

const retryMessageType = "translations.task.retry"

// RetryTranslationTaskCommand re-opens a terminal translation task.
type RetryTranslationTaskCommand struct {
	TaskID uuid.UUID `json:"task_id"`
}

// Type implements command.Message.
func (RetryTranslationTaskCommand) Type() string { return retryMessageType }

// Validate ensures the message identifies a task.
func (m RetryTranslationTaskCommand) Validate() error {
	errs := validation.Errors{}
	if m.TaskID == uuid.Nil {
		errs["task_id"] = validation.NewError("translations.task.retry.task_id_required", "task_id is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RetryTranslationTaskHandler resets terminal tasks via the task manager.
type RetryTranslationTaskHandler struct {
	inner *commands.Handler[RetryTranslationTaskCommand]
}

// NewRetryTranslationTaskHandler constructs a handler wired to the provided manager.
func NewRetryTranslationTaskHandler(manager *tasks.Manager, logger interfaces.Logger, opts ...commands.HandlerOption[RetryTranslationTaskCommand]) *RetryTranslationTaskHandler {
	exec := func(ctx context.Context, msg RetryTranslationTaskCommand) error {
		_, err := manager.RetryTask(ctx, msg.TaskID)
		return err
	}

	handlerOpts := []commands.HandlerOption[RetryTranslationTaskCommand]{
		commands.WithLogger[RetryTranslationTaskCommand](logger),
		commands.WithOperation[RetryTranslationTaskCommand]("translations.retry"),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &RetryTranslationTaskHandler{
		inner: commands.NewHandler[RetryTranslationTaskCommand](exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[RetryTranslationTaskCommand].Execute.
func (h *RetryTranslationTaskHandler) Execute(ctx context.Context, msg RetryTranslationTaskCommand) error {
	return h.inner.Execute(ctx, msg)
}
