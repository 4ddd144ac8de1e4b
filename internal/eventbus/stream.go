package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-translations/internal/logging"
	"github.com/goliatone/go-translations/pkg/interfaces"
	"github.com/goliatone/go-translations/translation"
)

// streamEntry is one delivered log entry.
type streamEntry struct {
	ID      string
	Payload []byte
}

// streamConn abstracts the append-only log primitives the stream bus relies
// on: acknowledged appends with bounded retention, consumer-group reads with
// per-entry acknowledgment, and claiming of stale pending entries.
type streamConn interface {
	Ping(ctx context.Context) error
	Append(ctx context.Context, stream string, payload []byte, maxLen int64) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]streamEntry, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	AutoClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]streamEntry, error)
	Close() error
}

var errNotInitialized = errors.New("eventbus: stream bus not initialized")

const consumeBatchSize = 16

// StreamBus delivers events through a replayable append-only log with
// consumer-group semantics. One stream exists per event type; all worker
// instances sharing a group compete for entries, and an entry leaves the
// pending list only after its handler returns without error. Handlers must be
// idempotent: redelivery after a crash or handler failure is by design.
type StreamBus struct {
	cfg    Config
	dial   func(Config) streamConn
	logger interfaces.Logger

	mu       sync.Mutex
	conn     streamConn
	handlers map[string]Handler
	loops    map[string]context.CancelFunc
	wg       sync.WaitGroup
	stopped  bool
}

// StreamOption customises a StreamBus.
type StreamOption func(*StreamBus)

// StreamWithLogger attaches a logger for delivery diagnostics.
func StreamWithLogger(logger interfaces.Logger) StreamOption {
	return func(b *StreamBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// streamWithConn injects a pre-built connection, used by tests and by hosts
// that manage their own client lifecycle.
func streamWithConn(conn streamConn) StreamOption {
	return func(b *StreamBus) {
		if conn != nil {
			b.dial = func(Config) streamConn { return conn }
		}
	}
}

// NewStreamBus constructs a durable log bus from the provided configuration.
func NewStreamBus(cfg Config, opts ...StreamOption) *StreamBus {
	bus := &StreamBus{
		cfg:      cfg.withDefaults(),
		dial:     dialRedis,
		logger:   logging.NoOp(),
		handlers: make(map[string]Handler),
		loops:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// Init connects to the backend and verifies reachability.
func (b *StreamBus) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrBusStopped
	}
	if b.conn != nil {
		return nil
	}
	conn := b.dial(b.cfg)
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return &TransportError{Op: "init", Err: err}
	}
	b.conn = conn
	return nil
}

// On registers the handler for eventType and starts its consume loop. A second
// registration for the same type replaces the handler in place; the existing
// loop picks it up on the next delivery.
func (b *StreamBus) On(eventType string, handler Handler) error {
	if handler == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrBusStopped
	}
	if b.conn == nil {
		return errNotInitialized
	}

	if _, exists := b.handlers[eventType]; exists {
		b.logger.Warn("stream bus replacing handler", "event_type", eventType)
	}
	b.handlers[eventType] = handler

	if _, running := b.loops[eventType]; running {
		return nil
	}

	stream := b.streamName(eventType)
	if err := b.conn.EnsureGroup(context.Background(), stream, b.cfg.Group); err != nil {
		delete(b.handlers, eventType)
		return &TransportError{Op: "subscribe", Err: err}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.loops[eventType] = cancel
	b.wg.Add(1)
	go b.consumeLoop(loopCtx, b.conn, eventType, stream)
	return nil
}

// Off stops the consume loop and deregisters the handler. Idempotent.
func (b *StreamBus) Off(eventType string) {
	b.mu.Lock()
	cancel, running := b.loops[eventType]
	delete(b.loops, eventType)
	delete(b.handlers, eventType)
	b.mu.Unlock()
	if running {
		cancel()
	}
}

// Emit appends the event to the log, returning once the backend acknowledges
// the append. Transient failures are retried a bounded number of times before
// a TransportError surfaces; callers treat that as "row upserted but not yet
// signaled" and rely on reconciliation.
func (b *StreamBus) Emit(ctx context.Context, eventType string, evt translation.TaskEvent) error {
	b.mu.Lock()
	conn := b.conn
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		return ErrBusStopped
	}
	if conn == nil {
		return &TransportError{Op: "emit", Err: errNotInitialized}
	}

	payload, err := evt.Encode()
	if err != nil {
		return err
	}

	stream := b.streamName(eventType)
	var lastErr error
	for attempt := 0; attempt <= b.cfg.EmitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return &TransportError{Op: "emit", Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
		if _, lastErr = conn.Append(ctx, stream, payload, b.cfg.MaxStreamLen); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		b.logger.Warn("stream bus append failed, retrying",
			"event_type", eventType,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	return &TransportError{Op: "emit", Err: lastErr}
}

// Claim transfers pending entries idle longer than the configured threshold to
// this consumer and runs them through the registered handler, acknowledging on
// success. It returns the number of entries processed.
func (b *StreamBus) Claim(ctx context.Context, eventType string) (int, error) {
	b.mu.Lock()
	conn := b.conn
	handler := b.handlers[eventType]
	b.mu.Unlock()
	if conn == nil {
		return 0, &TransportError{Op: "claim", Err: errNotInitialized}
	}
	if handler == nil {
		return 0, nil
	}

	stream := b.streamName(eventType)
	entries, err := conn.AutoClaim(ctx, stream, b.cfg.Group, b.cfg.Consumer, b.cfg.ClaimMinIdle, consumeBatchSize)
	if err != nil {
		return 0, &TransportError{Op: "claim", Err: err}
	}

	processed := 0
	for _, entry := range entries {
		if b.deliver(ctx, conn, stream, eventType, handler, entry) {
			processed++
		}
	}
	return processed, nil
}

// Stop terminates all consume loops and releases the connection. Safe to call
// repeatedly and from a state where Init was never called.
func (b *StreamBus) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	for _, cancel := range b.loops {
		cancel()
	}
	b.loops = make(map[string]context.CancelFunc)
	b.handlers = make(map[string]Handler)
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	b.wg.Wait()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (b *StreamBus) consumeLoop(ctx context.Context, conn streamConn, eventType, stream string) {
	defer b.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}

		entries, err := conn.ReadGroup(ctx, stream, b.cfg.Group, b.cfg.Consumer, consumeBatchSize, b.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("stream bus read failed", "event_type", eventType, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, entry := range entries {
			if ctx.Err() != nil {
				return
			}
			b.mu.Lock()
			handler := b.handlers[eventType]
			b.mu.Unlock()
			if handler == nil {
				return
			}
			b.deliver(ctx, conn, stream, eventType, handler, entry)
		}
	}
}

// deliver runs one entry through the handler, acknowledging on success.
// Handler failures leave the entry pending so another consumer can claim it;
// undecodable payloads are acknowledged to keep poison entries from cycling.
func (b *StreamBus) deliver(ctx context.Context, conn streamConn, stream, eventType string, handler Handler, entry streamEntry) bool {
	evt, err := translation.DecodeTaskEvent(entry.Payload)
	if err != nil {
		b.logger.Error("stream bus discarding undecodable entry",
			"event_type", eventType,
			"entry_id", entry.ID,
			"error", err,
		)
		if ackErr := conn.Ack(ctx, stream, b.cfg.Group, entry.ID); ackErr != nil {
			b.logger.Error("stream bus ack failed", "entry_id", entry.ID, "error", ackErr)
		}
		return false
	}

	if err := safeInvoke(ctx, handler, evt); err != nil {
		b.logger.Error("stream bus handler failed, leaving entry pending",
			"event_type", eventType,
			"entry_id", entry.ID,
			"task_id", evt.TaskID,
			"error", err,
		)
		return false
	}

	if err := conn.Ack(ctx, stream, b.cfg.Group, entry.ID); err != nil {
		b.logger.Error("stream bus ack failed", "entry_id", entry.ID, "error", err)
		return false
	}
	return true
}

func (b *StreamBus) streamName(eventType string) string {
	return b.cfg.StreamPrefix + ":" + eventType
}
