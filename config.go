package translations

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-translations/internal/eventbus"
	"github.com/goliatone/go-translations/internal/worker"
)

// Config carries the runtime settings for the translation pipeline.
type Config struct {
	// Bus selects and tunes the event transport shared by scheduler and
	// workers.
	Bus eventbus.Config

	// RetryLimit is the number of attempts before a task parks as failed.
	RetryLimit int

	// ReconcileInterval is how often the reconciliation sweep runs.
	ReconcileInterval time.Duration

	// PendingAge is how long a pending task must sit untouched before the
	// sweep re-signals it.
	PendingAge time.Duration

	// Locales seeds the enabled locale settings when the store is empty.
	// Leave empty to manage locales through the settings repository.
	Locales []string

	// DefaultLocale is the locale source records are authored in.
	DefaultLocale string
}

// DefaultConfig returns a memory-bus configuration suitable for tests and
// single-process hosts.
func DefaultConfig() Config {
	return Config{
		Bus:               eventbus.DefaultConfig(),
		RetryLimit:        worker.DefaultRetryLimit,
		ReconcileInterval: worker.DefaultSweepInterval,
		PendingAge:        worker.DefaultPendingAge,
		DefaultLocale:     "en",
	}
}

// Validate reports configuration problems before any wiring happens.
func (c Config) Validate() error {
	if err := c.Bus.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.RetryLimit, validation.Min(1)),
		validation.Field(&c.ReconcileInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.PendingAge, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultLocale, validation.Required.When(len(c.Locales) > 0)),
	)
}

func (c Config) withDefaults() Config {
	out := c
	if out.Bus.Backend == "" {
		out.Bus = eventbus.DefaultConfig()
	}
	if out.RetryLimit <= 0 {
		out.RetryLimit = worker.DefaultRetryLimit
	}
	if out.ReconcileInterval <= 0 {
		out.ReconcileInterval = worker.DefaultSweepInterval
	}
	if out.PendingAge <= 0 {
		out.PendingAge = worker.DefaultPendingAge
	}
	return out
}
