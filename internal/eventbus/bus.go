package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-translations/translation"
)

// Handler processes a single delivered task event. Returning an error leaves
// the event unacknowledged on backends that support redelivery; handlers must
// therefore be idempotent.
type Handler func(ctx context.Context, evt translation.TaskEvent) error

// Bus is the transport-agnostic event contract. Exactly one handler is active
// per event type per bus instance; registering a second handler for the same
// type replaces the previous one.
type Bus interface {
	// Init performs connection setup. It must be called once before the first
	// Emit or On against a networked backend and fails with a TransportError
	// when the backend is unreachable.
	Init(ctx context.Context) error

	// On registers the handler for an event type, replacing any previous one.
	// Handler errors are contained by the bus; they never terminate delivery
	// for other events.
	On(eventType string, handler Handler) error

	// Off deregisters the handler for the event type. Idempotent.
	Off(eventType string)

	// Emit hands the payload to the transport. The in-process backend
	// dispatches synchronously and drops events with no registered handler;
	// the durable backend returns once the append is acknowledged, whether or
	// not a consumer is attached.
	Emit(ctx context.Context, eventType string, evt translation.TaskEvent) error

	// Stop releases all resources. Safe to call repeatedly and before Init.
	Stop() error
}

// Claimer is implemented by backends that can reclaim another consumer's
// stale pending entries. The reconciler uses it to recover deliveries
// abandoned by crashed workers.
type Claimer interface {
	Claim(ctx context.Context, eventType string) (int, error)
}

// ErrTransport marks backend connectivity failures.
var ErrTransport = errors.New("eventbus: transport unavailable")

// ErrBusStopped is returned when operating on a stopped bus.
var ErrBusStopped = errors.New("eventbus: bus is stopped")

// TransportError wraps a backend connectivity failure with the operation that
// observed it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ErrTransport.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrTransport.Error(), e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrTransport.Error(), e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return ErrTransport
}

// IsTransportError reports whether err represents a transport failure.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}
