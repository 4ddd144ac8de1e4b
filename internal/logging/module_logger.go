package logging

import (
	"context"
	"strings"

	"github.com/goliatone/go-translations/pkg/interfaces"
)

const (
	rootModule   = "translations"
	busModule    = "translations.bus"
	tasksModule  = "translations.tasks"
	workerModule = "translations.worker"
)

// ModuleLogger returns a module-scoped logger, defaulting to a no-op
// implementation when no provider is supplied. The returned logger attaches
// the module identifier as structured context so downstream entries can be
// filtered predictably.
func ModuleLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	if module == "" {
		module = rootModule
	}

	logger := NoOp()
	if provider != nil {
		if provided := provider.GetLogger(module); provided != nil {
			logger = provided
		}
	}

	if fieldsLogger, ok := logger.(interfaces.FieldsLogger); ok {
		return fieldsLogger.WithFields(map[string]any{
			"module": module,
		})
	}

	return WithFields(logger, map[string]any{
		"module": module,
	})
}

// BusLogger returns the logger namespace reserved for event bus backends.
func BusLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, busModule)
}

// TasksLogger returns the logger namespace reserved for the task manager.
func TasksLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, tasksModule)
}

// WorkerLogger returns the logger namespace reserved for translation workers.
func WorkerLogger(provider interfaces.LoggerProvider) interfaces.Logger {
	return ModuleLogger(provider, workerModule)
}

// WithTaskContext enriches the provided logger with common task fields such as
// entity identity and target locale. Empty values are ignored.
func WithTaskContext(logger interfaces.Logger, entityType, entityID, locale string) interfaces.Logger {
	fields := map[string]any{}
	if trimmed := strings.TrimSpace(entityType); trimmed != "" {
		fields["entity_type"] = trimmed
	}
	if trimmed := strings.TrimSpace(entityID); trimmed != "" {
		fields["entity_id"] = trimmed
	}
	if trimmed := strings.TrimSpace(locale); trimmed != "" {
		fields["target_locale"] = trimmed
	}
	return WithFields(logger, fields)
}

// NoOp returns a logger that drops every log entry. It satisfies the Logger
// contract so services can safely operate when logging is disabled.
func NoOp() interfaces.Logger {
	return noopLogger{}
}

type noopLogger struct{}

var _ interfaces.Logger = noopLogger{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) interfaces.Logger {
	return n
}

func (n noopLogger) WithContext(context.Context) interfaces.Logger {
	return n
}
