package translation

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// EntityType identifies the translatable domain objects the pipeline serves.
type EntityType string

const (
	EntityCategory EntityType = "category"
	EntityTag      EntityType = "tag"
	EntityBadge    EntityType = "badge"
	EntityTopic    EntityType = "topic"
	EntityPost     EntityType = "post"
)

// EntityTypes lists every supported entity type.
func EntityTypes() []EntityType {
	return []EntityType{EntityCategory, EntityTag, EntityBadge, EntityTopic, EntityPost}
}

// Valid reports whether the entity type is one the pipeline knows about.
func (t EntityType) Valid() bool {
	switch t {
	case EntityCategory, EntityTag, EntityBadge, EntityTopic, EntityPost:
		return true
	}
	return false
}

// Kind classifies the entity by the structure of its translatable payload.
func (t EntityType) Kind() EntityKind {
	switch t {
	case EntityTopic:
		return KindLongform
	case EntityPost:
		return KindMarkup
	default:
		return KindSimple
	}
}

// EntityKind groups entity types by the translation contract their fields follow.
type EntityKind string

const (
	// KindSimple covers plain name/description pairs (categories, tags, badges).
	KindSimple EntityKind = "simple"
	// KindLongform covers title plus markdown body payloads (topics).
	KindLongform EntityKind = "longform"
	// KindMarkup covers HTML-bearing reply bodies (posts).
	KindMarkup EntityKind = "markup"
)

// Status enumerates the translation task state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether the status is a known state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status requires an explicit retry to leave.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether the state machine permits moving to the target
// status. Terminal states only re-open to pending via the administrative retry
// path; scheduling resets are modelled as an upsert, not a transition.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return to == StatusPending
	}
	return false
}

// Priority orders competing translation tasks.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh
}

// TaskKey is the composite identity of a task. At most one live task exists
// per key; schedulers upsert by it rather than inserting duplicates.
type TaskKey struct {
	EntityType   EntityType
	EntityID     uuid.UUID
	TargetLocale string
}

// Task is the unit of scheduled translation work for one (entity, locale) pair.
type Task struct {
	bun.BaseModel `bun:"table:translation_tasks,alias:tt"`

	ID            uuid.UUID  `bun:",pk,type:uuid" json:"id"`
	EntityType    EntityType `bun:"entity_type,notnull" json:"entity_type"`
	EntityID      uuid.UUID  `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	TargetLocale  string     `bun:"target_locale,notnull" json:"target_locale"`
	SourceLocale  string     `bun:"source_locale,notnull" json:"source_locale"`
	SourceVersion int64      `bun:"source_version,notnull" json:"source_version"`
	Status        Status     `bun:"status,notnull,default:'pending'" json:"status"`
	Priority      Priority   `bun:"priority,notnull,default:'normal'" json:"priority"`
	RetryCount    int        `bun:"retry_count,notnull,default:0" json:"retry_count"`
	ErrorMessage  *string    `bun:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
	StartedAt     *time.Time `bun:"started_at,nullzero" json:"started_at,omitempty"`
	CompletedAt   *time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
}

// Key returns the task's composite identity.
func (t *Task) Key() TaskKey {
	if t == nil {
		return TaskKey{}
	}
	return TaskKey{
		EntityType:   t.EntityType,
		EntityID:     t.EntityID,
		TargetLocale: t.TargetLocale,
	}
}

// Record is the materialized translation output for one (entity, locale) pair.
// Exactly one record per entity carries IsSource = true; its Version is the
// authority schedulers compare task SourceVersion against.
type Record struct {
	bun.BaseModel `bun:"table:translation_records,alias:tr"`

	ID         uuid.UUID      `bun:",pk,type:uuid" json:"id"`
	EntityType EntityType     `bun:"entity_type,notnull" json:"entity_type"`
	EntityID   uuid.UUID      `bun:"entity_id,notnull,type:uuid" json:"entity_id"`
	Locale     string         `bun:"locale,notnull" json:"locale"`
	Fields     map[string]any `bun:"fields,type:jsonb,notnull" json:"fields"`
	IsSource   bool           `bun:"is_source,notnull,default:false" json:"is_source"`
	Version    int64          `bun:"version,notnull" json:"version"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at"`
}

// Fresh reports whether the target record was produced from the source
// record's current version. A stale record is still served; staleness only
// signals that a newer translation is outstanding.
func Fresh(source, target *Record) bool {
	if source == nil || target == nil {
		return false
	}
	return target.Version == source.Version
}
