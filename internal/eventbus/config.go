package eventbus

import (
	"fmt"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Backend selects the bus transport implementation.
type Backend string

const (
	// BackendMemory dispatches events synchronously in-process. At-most-once,
	// no durability; a crash between emit and handler completion loses the event.
	BackendMemory Backend = "memory"
	// BackendStream appends events to a replayable log with consumer-group
	// semantics, giving at-least-once delivery across restarts and instances.
	BackendStream Backend = "stream"
)

// Config describes how the factory should construct a bus for a namespace.
type Config struct {
	// Backend picks the transport. Defaults to BackendMemory.
	Backend Backend
	// Addr is the stream backend address (host:port). Required for streams.
	Addr string
	// Password authenticates against the stream backend when set.
	Password string
	// DB selects the stream backend logical database.
	DB int
	// StreamPrefix namespaces stream keys; the factory appends the bus
	// namespace so independent deployments never share streams.
	StreamPrefix string
	// Group names the consumer group all worker instances join.
	Group string
	// Consumer uniquely names this process within the group. Defaults to
	// hostname plus a random suffix so stale pending entries stay claimable.
	Consumer string
	// MaxStreamLen caps stream length (approximate trim). Zero keeps the
	// backend default of 10000 entries.
	MaxStreamLen int64
	// EmitRetries bounds retries of transient append failures before a
	// TransportError surfaces to the caller.
	EmitRetries int
	// BlockTimeout bounds each consumer poll against the backend.
	BlockTimeout time.Duration
	// ClaimMinIdle is how long a pending entry must sit unacknowledged before
	// another consumer may claim it.
	ClaimMinIdle time.Duration
}

const (
	defaultStreamPrefix = "translations"
	defaultGroup        = "translation-workers"
	defaultMaxStreamLen = 10000
	defaultEmitRetries  = 3
	defaultBlockTimeout = 5 * time.Second
	defaultClaimMinIdle = time.Minute
)

// DefaultConfig returns an in-process bus configuration.
func DefaultConfig() Config {
	return Config{
		Backend:      BackendMemory,
		StreamPrefix: defaultStreamPrefix,
		Group:        defaultGroup,
		MaxStreamLen: defaultMaxStreamLen,
		EmitRetries:  defaultEmitRetries,
		BlockTimeout: defaultBlockTimeout,
		ClaimMinIdle: defaultClaimMinIdle,
	}
}

// Validate checks the configuration for the selected backend.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend,
			validation.Required,
			validation.In(BackendMemory, BackendStream),
		),
		validation.Field(&c.Addr,
			validation.Required.When(c.Backend == BackendStream).Error("addr is required for the stream backend"),
		),
		validation.Field(&c.Group,
			validation.Required.When(c.Backend == BackendStream).Error("consumer group is required for the stream backend"),
		),
		validation.Field(&c.MaxStreamLen, validation.Min(int64(0))),
		validation.Field(&c.EmitRetries, validation.Min(0)),
	)
}

// withDefaults fills unset optional values.
func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.StreamPrefix == "" {
		c.StreamPrefix = defaultStreamPrefix
	}
	if c.Group == "" {
		c.Group = defaultGroup
	}
	if c.Consumer == "" {
		c.Consumer = defaultConsumerName()
	}
	if c.MaxStreamLen <= 0 {
		c.MaxStreamLen = defaultMaxStreamLen
	}
	if c.EmitRetries <= 0 {
		c.EmitRetries = defaultEmitRetries
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = defaultBlockTimeout
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = defaultClaimMinIdle
	}
	return c
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
