package attributes

import (
	"errors"
)

var (
	// ErrCorrupted is returned when attribute records violate the storage
	// format. The storage never repairs it, callers are expected to rebuild.
	ErrCorrupted = errors.New("attribute storage is corrupted")

	// ErrInvalidAttributeID is returned for attribute ids outside of
	// [0..MaxAttributeID].
	ErrInvalidAttributeID = errors.New("invalid attribute id")

	// ErrInvalidFileID is returned for non-positive file ids.
	ErrInvalidFileID = errors.New("invalid file id")

	// ErrValueTooLarge is returned when the attribute value exceeds the
	// configured limit.
	ErrValueTooLarge = errors.New("attribute value is too large")
)
