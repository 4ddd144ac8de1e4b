package commands

import (
	"strings"

	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/pkg/interfaces"
)

const commandModuleRoot = "translations.commands"

// CommandLogger returns a module-scoped logger for command handlers, carrying
// consistent structured fields across executions.
func CommandLogger(provider interfaces.LoggerProvider, module string) interfaces.Logger {
	name := strings.TrimSpace(module)
	if name == "" {
		name = "core"
	}
	logger := logging.ModuleLogger(provider, commandModuleRoot+"."+name)
	return logging.WithFields(logger, map[string]any{
		"component":      "command",
		"command_module": name,
	})
}
