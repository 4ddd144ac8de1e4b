package translation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EventTaskScheduled is emitted every time a task is created or reset. The
// payload is intentionally thin; consumers reload the task row before acting
// so that redeliveries and reordering stay harmless.
const EventTaskScheduled = "task.scheduled"

// TaskEvent is the envelope carried by the event bus for scheduled tasks.
type TaskEvent struct {
	TaskID       uuid.UUID  `json:"task_id"`
	EntityType   EntityType `json:"entity_type"`
	EntityID     uuid.UUID  `json:"entity_id"`
	TargetLocale string     `json:"target_locale"`
	Priority     Priority   `json:"priority"`
}

// NewTaskEvent builds the envelope for a scheduled task.
func NewTaskEvent(task *Task) TaskEvent {
	if task == nil {
		return TaskEvent{}
	}
	return TaskEvent{
		TaskID:       task.ID,
		EntityType:   task.EntityType,
		EntityID:     task.EntityID,
		TargetLocale: task.TargetLocale,
		Priority:     task.Priority,
	}
}

// Encode serialises the event for transport.
func (e TaskEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeTaskEvent parses an envelope previously produced by Encode.
func DecodeTaskEvent(data []byte) (TaskEvent, error) {
	var evt TaskEvent
	if len(data) == 0 {
		return evt, errors.New("translation: empty task event payload")
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("translation: decode task event: %w", err)
	}
	if evt.TaskID == uuid.Nil {
		return evt, errors.New("translation: task event missing task id")
	}
	return evt, nil
}
