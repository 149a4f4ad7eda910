package table

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrReadOnly       = errors.New("table is read-only")
	ErrNotEditing     = errors.New("no row is being edited")
	ErrEditInProgress = errors.New("another row is being edited")
	ErrRowOutOfRange  = errors.New("row index out of range")
	ErrClosed         = errors.New("table is closed")
	ErrVetoed         = errors.New("edit transition vetoed")
	ErrInvalidRow     = errors.New("row failed validation")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrNothingToRedo  = errors.New("nothing to redo")
	ErrReservedField  = errors.New("field is reserved")
)

// MoveErrorReason classifies a rejected or adjusted move.
type MoveErrorReason string

const (
	ReasonInvalidFrom MoveErrorReason = "invalid_from_index"
	ReasonInvalidTo   MoveErrorReason = "invalid_to_index"
	ReasonEditing     MoveErrorReason = "editing"
	ReasonReadOnly    MoveErrorReason = "readonly"
)

// MoveError is the payload of a moveerror event. ClampedToIndex is set
// only for ReasonInvalidTo, where the move still happens.
type MoveError struct {
	FromIndex      int             `json:"fromIndex"`
	ToIndex        int             `json:"toIndex"`
	ClampedToIndex *int            `json:"clampedToIndex,omitempty"`
	Reason         MoveErrorReason `json:"reason"`
	Message        string          `json:"message"`
	Timestamp      time.Time       `json:"timestamp"`
}

func (e *MoveError) Error() string {
	return e.Message
}

func newMoveError(reason MoveErrorReason, from, to, n int, at time.Time) *MoveError {
	e := &MoveError{FromIndex: from, ToIndex: to, Reason: reason, Timestamp: at}
	switch reason {
	case ReasonInvalidFrom:
		if n == 0 {
			e.Message = fmt.Sprintf("invalid source index %d: table is empty", from)
		} else {
			e.Message = fmt.Sprintf("invalid source index %d: must be between 0 and %d", from, n-1)
		}
	case ReasonEditing:
		e.Message = "cannot move rows while a row is being edited"
	case ReasonReadOnly:
		e.Message = "cannot move rows in read-only mode"
	}
	return e
}

func clampedMoveError(from, to, clamped int, at time.Time) *MoveError {
	return &MoveError{
		FromIndex:      from,
		ToIndex:        to,
		ClampedToIndex: &clamped,
		Reason:         ReasonInvalidTo,
		Message:        fmt.Sprintf("target index %d out of range: clamped to %d", to, clamped),
		Timestamp:      at,
	}
}
