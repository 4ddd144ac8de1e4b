package eventbus

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/pkg/interfaces"
)

// Factory caches one live bus per logical namespace for the lifetime of the
// process. Producers and workers never construct a bus directly; they request
// it by namespace and are handed the shared instance, so a namespace never
// holds two competing transport connections.
type Factory struct {
	mu     sync.Mutex
	buses  map[string]Bus
	logger interfaces.Logger
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// FactoryWithLogger attaches a logger passed through to constructed buses.
func FactoryWithLogger(logger interfaces.Logger) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory constructs an empty bus registry.
func NewFactory(opts ...FactoryOption) *Factory {
	factory := &Factory{
		buses:  make(map[string]Bus),
		logger: logging.NoOp(),
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

var (
	defaultFactoryOnce sync.Once
	defaultFactory     *Factory
)

// Default returns the process-wide factory. Hosts that need isolation (tests,
// multi-tenant embedding) construct their own via NewFactory and inject it.
func Default() *Factory {
	defaultFactoryOnce.Do(func() {
		defaultFactory = NewFactory()
	})
	return defaultFactory
}

// GetBus returns the cached bus for the namespace, constructing and
// initialising one from cfg on first use. Concurrent first-callers for the
// same namespace converge on a single instance.
func (f *Factory) GetBus(ctx context.Context, namespace string, cfg Config) (Bus, error) {
	if namespace == "" {
		return nil, errors.New("eventbus: namespace is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if bus, ok := f.buses[namespace]; ok {
		return bus, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	var bus Bus
	switch cfg.Backend {
	case BackendStream:
		// Scope stream keys to the namespace so buses for different entity
		// types never interleave entries.
		cfg.StreamPrefix = cfg.StreamPrefix + ":" + namespace
		bus = NewStreamBus(cfg, StreamWithLogger(f.logger))
	default:
		bus = NewMemoryBus(MemoryWithLogger(f.logger))
	}

	if err := bus.Init(ctx); err != nil {
		return nil, err
	}

	f.buses[namespace] = bus
	f.logger.Debug("event bus constructed", "namespace", namespace, "backend", string(cfg.Backend))
	return bus, nil
}

// Clear stops and evicts the bus for a namespace. Used for reconfiguration
// and test teardown; a later GetBus constructs a fresh instance.
func (f *Factory) Clear(namespace string) error {
	f.mu.Lock()
	bus, ok := f.buses[namespace]
	delete(f.buses, namespace)
	f.mu.Unlock()

	if !ok {
		return nil
	}
	return bus.Stop()
}

// ClearAll stops and evicts every cached bus.
func (f *Factory) ClearAll() error {
	f.mu.Lock()
	buses := f.buses
	f.buses = make(map[string]Bus)
	f.mu.Unlock()

	var firstErr error
	for namespace, bus := range buses {
		if err := bus.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		f.logger.Debug("event bus stopped", "namespace", namespace)
	}
	return firstErr
}
