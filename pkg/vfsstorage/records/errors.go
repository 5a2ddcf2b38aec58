package records

import (
	"errors"
)

var (
	// ErrCorrupted is returned when the records file content violates the
	// format invariants. The storage never repairs it.
	ErrCorrupted = errors.New("records storage is corrupted")

	// ErrIDOutOfRange is returned for record identifiers outside of
	// [1..MaxAllocatedID].
	ErrIDOutOfRange = errors.New("record id out of range")

	// ErrSelfParent is returned on attempt to make a record its own parent.
	ErrSelfParent = errors.New("record can't be its own parent")

	// ErrReadOnly is returned for modifying operations in read-only mode.
	ErrReadOnly = errors.New("records storage is opened as read-only")

	// ErrNoSpace is returned when the identifier space is exhausted.
	ErrNoSpace = errors.New("no free record ids")

	// ErrModCountOverflow is returned by modifying operations once the global
	// modification counter reached its maximum. The storage must be rebuilt.
	ErrModCountOverflow = errors.New("modification counter overflow")

	// ErrIncompatibleVersion is returned when the file was written by an
	// incompatible format version.
	ErrIncompatibleVersion = errors.New("incompatible records file version")
)
