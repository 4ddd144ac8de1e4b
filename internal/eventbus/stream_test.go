package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-translations/translation"
	"github.com/google/uuid"
)

// fakeLog is an in-memory append-only log with consumer-group semantics:
// per-group cursors, per-entry pending bookkeeping, acknowledgment, and
// idle-entry claiming. It backs fakeConn so stream bus behaviour can be
// exercised without a live backend.
type fakeLog struct {
	mu      sync.Mutex
	streams map[string][]fakeEntry
	groups  map[string]*fakeGroup

	appendErrs int // countdown of injected transient append failures
	appendSeen int
	pingErr    error
}

type fakeEntry struct {
	id      string
	payload []byte
}

type fakeGroup struct {
	cursor  int
	pending map[string]*fakePending
}

type fakePending struct {
	entry       fakeEntry
	consumer    string
	deliveredAt time.Time
}

func newFakeLog() *fakeLog {
	return &fakeLog{
		streams: make(map[string][]fakeEntry),
		groups:  make(map[string]*fakeGroup),
	}
}

func (l *fakeLog) groupKey(stream, group string) string {
	return stream + "/" + group
}

func (l *fakeLog) conn() *fakeConn {
	return &fakeConn{log: l}
}

type fakeConn struct {
	log    *fakeLog
	closed bool
}

func (c *fakeConn) Ping(context.Context) error {
	return c.log.pingErr
}

func (c *fakeConn) Append(_ context.Context, stream string, payload []byte, maxLen int64) (string, error) {
	l := c.log
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendSeen++
	if l.appendErrs != 0 {
		if l.appendErrs > 0 {
			l.appendErrs--
		}
		return "", errors.New("connection reset")
	}
	id := fmt.Sprintf("%d-0", len(l.streams[stream])+1)
	l.streams[stream] = append(l.streams[stream], fakeEntry{id: id, payload: payload})
	if maxLen > 0 && int64(len(l.streams[stream])) > maxLen {
		trim := int64(len(l.streams[stream])) - maxLen
		l.streams[stream] = l.streams[stream][trim:]
	}
	return id, nil
}

func (c *fakeConn) EnsureGroup(_ context.Context, stream, group string) error {
	l := c.log
	l.mu.Lock()
	defer l.mu.Unlock()
	key := l.groupKey(stream, group)
	if _, ok := l.groups[key]; !ok {
		l.groups[key] = &fakeGroup{pending: make(map[string]*fakePending)}
	}
	return nil
}

func (c *fakeConn) ReadGroup(_ context.Context, stream, group, consumer string, count int64, block time.Duration) ([]streamEntry, error) {
	deadline := time.Now().Add(block)
	for {
		l := c.log
		l.mu.Lock()
		g, ok := l.groups[l.groupKey(stream, group)]
		if !ok {
			l.mu.Unlock()
			return nil, errors.New("NOGROUP no such consumer group")
		}
		entries := l.streams[stream]
		var out []streamEntry
		for g.cursor < len(entries) && int64(len(out)) < count {
			entry := entries[g.cursor]
			g.cursor++
			g.pending[entry.id] = &fakePending{entry: entry, consumer: consumer, deliveredAt: time.Now()}
			out = append(out, streamEntry{ID: entry.id, Payload: entry.payload})
		}
		l.mu.Unlock()
		if len(out) > 0 || time.Now().After(deadline) {
			return out, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeConn) Ack(_ context.Context, stream, group string, ids ...string) error {
	l := c.log
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.groups[l.groupKey(stream, group)]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(g.pending, id)
	}
	return nil
}

func (c *fakeConn) AutoClaim(_ context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]streamEntry, error) {
	l := c.log
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.groups[l.groupKey(stream, group)]
	if !ok {
		return nil, nil
	}
	var out []streamEntry
	now := time.Now()
	for _, pending := range g.pending {
		if int64(len(out)) >= count {
			break
		}
		if now.Sub(pending.deliveredAt) < minIdle {
			continue
		}
		pending.consumer = consumer
		pending.deliveredAt = now
		out = append(out, streamEntry{ID: pending.entry.id, Payload: pending.entry.payload})
	}
	return out, nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (l *fakeLog) cursor(stream, group string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.groups[l.groupKey(stream, group)]
	if !ok {
		return 0
	}
	return g.cursor
}

func (l *fakeLog) pendingCount(stream, group string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.groups[l.groupKey(stream, group)]
	if !ok {
		return 0
	}
	return len(g.pending)
}

func streamTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendStream
	cfg.Addr = "localhost:6379"
	cfg.Group = "workers"
	cfg.BlockTimeout = 10 * time.Millisecond
	cfg.ClaimMinIdle = time.Millisecond
	return cfg
}

func newStreamBusForTest(t *testing.T, log *fakeLog, consumer string) *StreamBus {
	t.Helper()
	cfg := streamTestConfig()
	cfg.Consumer = consumer
	bus := NewStreamBus(cfg, streamWithConn(log.conn()))
	if err := bus.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = bus.Stop() })
	return bus
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestStreamBusInitUnreachable(t *testing.T) {
	log := newFakeLog()
	log.pingErr = errors.New("dial tcp: connection refused")

	bus := NewStreamBus(streamTestConfig(), streamWithConn(log.conn()))
	err := bus.Init(context.Background())
	if !IsTransportError(err) {
		t.Fatalf("Init() error = %v, want transport error", err)
	}
}

func TestStreamBusCompetingConsumers(t *testing.T) {
	log := newFakeLog()
	busA := newStreamBusForTest(t, log, "consumer-a")
	busB := newStreamBusForTest(t, log, "consumer-b")

	var mu sync.Mutex
	seen := map[uuid.UUID]int{}
	handler := func(_ context.Context, evt translation.TaskEvent) error {
		mu.Lock()
		seen[evt.TaskID]++
		mu.Unlock()
		return nil
	}
	if err := busA.On(translation.EventTaskScheduled, handler); err != nil {
		t.Fatalf("On() busA error = %v", err)
	}
	if err := busB.On(translation.EventTaskScheduled, handler); err != nil {
		t.Fatalf("On() busB error = %v", err)
	}

	const total = 20
	ctx := context.Background()
	for i := 0; i < total; i++ {
		evt := translation.TaskEvent{TaskID: uuid.New(), EntityType: translation.EntityTopic, TargetLocale: "es"}
		if err := busA.Emit(ctx, translation.EventTaskScheduled, evt); err != nil {
			t.Fatalf("Emit() error = %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	})

	mu.Lock()
	defer mu.Unlock()
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("event %s processed %d times, want exactly once", id, count)
		}
	}
}

func TestStreamBusFailedHandlerLeavesEntryClaimable(t *testing.T) {
	log := newFakeLog()
	bus := newStreamBusForTest(t, log, "consumer-a")

	stream := bus.streamName(translation.EventTaskScheduled)
	attempts := 0
	var mu sync.Mutex
	if err := bus.On(translation.EventTaskScheduled, func(context.Context, translation.TaskEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("worker died mid-task")
		}
		return nil
	}); err != nil {
		t.Fatalf("On() error = %v", err)
	}

	ctx := context.Background()
	if err := bus.Emit(ctx, translation.EventTaskScheduled, translation.TaskEvent{TaskID: uuid.New()}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	// First delivery fails; the entry must stay pending.
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 1
	})
	if got := log.pendingCount(stream, "workers"); got != 1 {
		t.Fatalf("pending entries = %d, want 1", got)
	}

	// Claiming redelivers the abandoned entry and acknowledges on success.
	time.Sleep(2 * time.Millisecond)
	processed, err := bus.Claim(ctx, translation.EventTaskScheduled)
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if processed != 1 {
		t.Fatalf("Claim() processed = %d, want 1", processed)
	}
	if got := log.pendingCount(stream, "workers"); got != 0 {
		t.Fatalf("pending entries after claim = %d, want 0", got)
	}
}

func TestStreamBusHandlerIsolation(t *testing.T) {
	log := newFakeLog()
	bus := newStreamBusForTest(t, log, "consumer-a")

	failing := uuid.New()
	ok := uuid.New()
	var mu sync.Mutex
	delivered := map[uuid.UUID]bool{}
	if err := bus.On(translation.EventTaskScheduled, func(_ context.Context, evt translation.TaskEvent) error {
		mu.Lock()
		delivered[evt.TaskID] = true
		mu.Unlock()
		if evt.TaskID == failing {
			return errors.New("shape validation failed")
		}
		return nil
	}); err != nil {
		t.Fatalf("On() error = %v", err)
	}

	ctx := context.Background()
	_ = bus.Emit(ctx, translation.EventTaskScheduled, translation.TaskEvent{TaskID: failing})
	_ = bus.Emit(ctx, translation.EventTaskScheduled, translation.TaskEvent{TaskID: ok})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered[ok]
	})
}

func TestStreamBusEmitRetriesTransientErrors(t *testing.T) {
	log := newFakeLog()
	log.appendErrs = 2
	bus := newStreamBusForTest(t, log, "consumer-a")

	if err := bus.Emit(context.Background(), translation.EventTaskScheduled, translation.TaskEvent{TaskID: uuid.New()}); err != nil {
		t.Fatalf("Emit() error = %v, want retried success", err)
	}
	if log.appendSeen != 3 {
		t.Fatalf("append attempts = %d, want 3", log.appendSeen)
	}
}

func TestStreamBusEmitSurfacesTransportError(t *testing.T) {
	log := newFakeLog()
	log.appendErrs = -1 // never recovers
	bus := newStreamBusForTest(t, log, "consumer-a")

	err := bus.Emit(context.Background(), translation.EventTaskScheduled, translation.TaskEvent{TaskID: uuid.New()})
	if !IsTransportError(err) {
		t.Fatalf("Emit() error = %v, want transport error", err)
	}
}

func TestStreamBusAcksPoisonEntries(t *testing.T) {
	log := newFakeLog()
	bus := newStreamBusForTest(t, log, "consumer-a")

	stream := bus.streamName(translation.EventTaskScheduled)
	if err := bus.conn.EnsureGroup(context.Background(), stream, "workers"); err != nil {
		t.Fatalf("EnsureGroup() error = %v", err)
	}
	if _, err := bus.conn.Append(context.Background(), stream, []byte("{malformed"), 0); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	calls := 0
	var mu sync.Mutex
	if err := bus.On(translation.EventTaskScheduled, func(context.Context, translation.TaskEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("On() error = %v", err)
	}

	waitFor(t, time.Second, func() bool {
		return log.cursor(stream, "workers") == 1 && log.pendingCount(stream, "workers") == 0
	})
	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("handler calls = %d, want 0 for undecodable entry", calls)
	}
}

func TestStreamBusStopIsSafe(t *testing.T) {
	bus := NewStreamBus(streamTestConfig(), streamWithConn(newFakeLog().conn()))
	if err := bus.Stop(); err != nil {
		t.Fatalf("Stop() before Init error = %v", err)
	}
	if err := bus.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if err := bus.Init(context.Background()); !errors.Is(err, ErrBusStopped) {
		t.Fatalf("Init() after Stop error = %v, want ErrBusStopped", err)
	}
}
