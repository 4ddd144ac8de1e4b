package translation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrTaskNotFound         = errors.New("translation: task not found")
	ErrRecordNotFound       = errors.New("translation: record not found")
	ErrEntityTypeInvalid    = errors.New("translation: entity type is invalid")
	ErrEntityIDRequired     = errors.New("translation: entity id is required")
	ErrLocaleRequired       = errors.New("translation: locale is required")
	ErrSourceVersionInvalid = errors.New("translation: source version must be positive")
	ErrTaskNotPending       = errors.New("translation: task is not pending")
	ErrTaskNotRetryable     = errors.New("translation: task is not in a terminal state")
	ErrStaleTask            = errors.New("translation: task superseded by a newer source version")
	ErrStatusTransition     = errors.New("translation: status transition is invalid")
)

// StaleTaskError reports a write-time version mismatch between a worker's
// claimed task and the live task row.
type StaleTaskError struct {
	TaskID         uuid.UUID
	ClaimedVersion int64
	CurrentVersion int64
}

func (e *StaleTaskError) Error() string {
	if e == nil {
		return ErrStaleTask.Error()
	}
	return fmt.Sprintf("%s: claimed=%d current=%d", ErrStaleTask.Error(), e.ClaimedVersion, e.CurrentVersion)
}

func (e *StaleTaskError) Unwrap() error {
	return ErrStaleTask
}

// StatusTransitionError reports a rejected state machine move.
type StatusTransitionError struct {
	TaskID uuid.UUID
	From   Status
	To     Status
}

func (e *StatusTransitionError) Error() string {
	if e == nil {
		return ErrStatusTransition.Error()
	}
	return fmt.Sprintf("%s: %s -> %s", ErrStatusTransition.Error(), e.From, e.To)
}

func (e *StatusTransitionError) Unwrap() error {
	return ErrStatusTransition
}
