// internal/room/errors.go
package room

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/coderoom/internal/judge"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/jason-s-yu/coderoom/internal/store"
)

// Error classes surfaced to clients. Every error returned by Service wraps
// exactly one of these.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrConcurrency  = errors.New("room is busy")
	ErrCollaborator = errors.New("collaborator failure")
)

// classify wraps store, model and judge errors into their class.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConcurrency), errors.Is(err, ErrCollaborator):
		return err
	case errors.Is(err, store.ErrRoomNotFound), errors.Is(err, models.ErrNotMember):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicateTitle), errors.Is(err, models.ErrRoomFull),
		errors.Is(err, models.ErrRoomEmpty), errors.Is(err, models.ErrNoEmptySlot),
		errors.Is(err, models.ErrSlotOccupied), errors.Is(err, models.ErrNotOwner),
		errors.Is(err, models.ErrCapacityRange):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, models.ErrSlotIndex), errors.Is(err, models.ErrUnknownFlag),
		errors.Is(err, models.ErrSentinelFlag):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	case errors.Is(err, judge.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrCollaborator, err)
	}
	return err
}

// Code is the machine-readable class of err used in failure replies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConcurrency):
		return "concurrency"
	case errors.Is(err, ErrCollaborator):
		return "collaborator"
	}
	return "internal"
}

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
