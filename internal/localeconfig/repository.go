package localeconfig

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrSettingsNotFound indicates that locale settings have not been configured yet.
var ErrSettingsNotFound = errors.New("localeconfig: settings not found")

// Settings capture the runtime locale fan-out configuration. EnabledLocales is
// the full set of locales translations should exist in; scheduling removes the
// source locale per entity at run time.
type Settings struct {
	EnabledLocales []string
	DefaultLocale  string
}

// Repository persists locale settings and emits change notifications.
type Repository interface {
	Get(ctx context.Context) (Settings, error)
	Upsert(ctx context.Context, settings Settings) (Settings, error)
	Delete(ctx context.Context) error
	Subscribe(ctx context.Context) (<-chan ChangeEvent, error)
}

// ChangeType enumerates settings change events.
type ChangeType string

const (
	// ChangeCreated indicates settings were first persisted.
	ChangeCreated ChangeType = "created"
	// ChangeUpdated indicates settings were updated.
	ChangeUpdated ChangeType = "updated"
	// ChangeDeleted indicates settings were cleared.
	ChangeDeleted ChangeType = "deleted"
)

// ChangeEvent reports settings mutations to interested subscribers.
type ChangeEvent struct {
	Type     ChangeType
	Settings Settings
}

func newChangeEvent(changeType ChangeType, settings Settings) ChangeEvent {
	return ChangeEvent{
		Type:     changeType,
		Settings: settings,
	}
}

// ParseLocales decodes a JSON-encoded array of locale tags. Malformed or empty
// input yields the zero set; scheduling treats that as "no enabled targets"
// rather than an error, so a bad config value can never fail an edit.
func ParseLocales(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return NormalizeLocales(tags)
}

// EncodeLocales serialises locale tags into the persisted JSON form.
func EncodeLocales(tags []string) string {
	normalized := NormalizeLocales(tags)
	if len(normalized) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

// NormalizeLocales trims blanks and removes duplicates while preserving order.
// Locale tags compare case-insensitively ("en-US" equals "en-us").
func NormalizeLocales(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SameLocale compares two locale tags case-insensitively.
func SameLocale(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
