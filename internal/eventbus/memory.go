package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/goliatone/go-translations/translation"
)

// MemoryBus delivers events synchronously within one process. Delivery is
// at-most-once and non-durable: events with no registered handler are dropped,
// and a crash between Emit and handler completion loses the event. Schedulers
// bound to this backend must not assume durability.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	stopped  bool
	dropped  atomic.Uint64
	logger   interfaces.Logger
}

// MemoryOption customises a MemoryBus.
type MemoryOption func(*MemoryBus)

// MemoryWithLogger attaches a logger for handler failures and drops.
func MemoryWithLogger(logger interfaces.Logger) MemoryOption {
	return func(b *MemoryBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewMemoryBus constructs an in-process bus.
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	bus := &MemoryBus{
		handlers: make(map[string]Handler),
		logger:   logging.NoOp(),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Init is a no-op for the in-process backend.
func (b *MemoryBus) Init(context.Context) error {
	return nil
}

// On registers the handler for eventType, replacing any previous registration.
func (b *MemoryBus) On(eventType string, handler Handler) error {
	if handler == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrBusStopped
	}
	if _, exists := b.handlers[eventType]; exists {
		b.logger.Warn("memory bus replacing handler", "event_type", eventType)
	}
	b.handlers[eventType] = handler
	return nil
}

// Off removes the handler for eventType. Idempotent.
func (b *MemoryBus) Off(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, eventType)
}

// Emit dispatches the event inline. Publish is fire-and-forget from the
// caller's perspective: handler errors are logged and swallowed, and Emit
// returns nil even when no handler is registered.
func (b *MemoryBus) Emit(ctx context.Context, eventType string, evt translation.TaskEvent) error {
	b.mu.RLock()
	handler, ok := b.handlers[eventType]
	stopped := b.stopped
	b.mu.RUnlock()

	if stopped {
		return ErrBusStopped
	}
	if !ok {
		b.dropped.Add(1)
		b.logger.Debug("memory bus dropping event with no handler",
			"event_type", eventType,
			"task_id", evt.TaskID,
		)
		return nil
	}
	if err := safeInvoke(ctx, handler, evt); err != nil {
		b.logger.Error("memory bus handler failed",
			"event_type", eventType,
			"task_id", evt.TaskID,
			"error", err,
		)
	}
	return nil
}

// Stop clears all handlers. Safe to call repeatedly and before Init.
func (b *MemoryBus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.handlers = make(map[string]Handler)
	return nil
}

// Dropped reports how many events were emitted with no handler attached.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// safeInvoke contains handler panics so one misbehaving consumer cannot crash
// the delivery path.
func safeInvoke(ctx context.Context, handler Handler, evt translation.TaskEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &handlerPanicError{value: r}
		}
	}()
	return handler(ctx, evt)
}

type handlerPanicError struct {
	value any
}

func (e *handlerPanicError) Error() string {
	return "eventbus: handler panicked"
}
