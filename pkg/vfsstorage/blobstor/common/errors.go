package common

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnly MUST be returned for modifying operations when the storage was opened
	// in readonly mode.
	ErrReadOnly = errors.New("opened as read-only")

	// ErrNoSpace MUST be returned when the identifier space of the storage is exhausted.
	ErrNoSpace = errors.New("no free space")

	// ErrRecordNotFound is returned when the record identifier has never been allocated.
	ErrRecordNotFound = errors.New("record not found")

	// ErrAlreadyDeleted is returned when accessing or deleting a record that has
	// already been deleted.
	ErrAlreadyDeleted = errors.New("record is already deleted")

	// ErrStop can be returned from ForEach handlers to break the iteration.
	ErrStop = errors.New("stop iteration")

	// ErrFatal is returned when the underlying database panicked.
	ErrFatal = errors.New("fatal storage error")
)

// BboltFatalHandler catches bbolt database panic and wraps the error in ErrFatal.
// It is intended to be executed in `defer` of all bbolt-related routines.
func BboltFatalHandler(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrFatal, r)
	}
}
