package records

import (
	"unsafe"
)

// NullID is the reserved identifier meaning "no record".
const NullID int32 = 0

// RecordSize is the size of a single record and of the file header in bytes.
const RecordSize = 40

// Version is the current version of the records file format.
const Version int32 = 1

// Header fields. The header occupies slot 0 of the first page, so record N
// lives in slot N.
const (
	hdrVersionOffset             = 0  // int32
	hdrRecordsAllocatedOffset    = 4  // int32
	hdrGlobalModCountOffset      = 8  // int32
	hdrOwnerProcessIDOffset      = 12 // int32
	hdrCreatedAtOffset           = 16 // int64
	hdrOwnershipAcquiredAtOffset = 24 // int64
	hdrErrorsAccumulatedOffset   = 32 // int32
	hdrPageSizeOffset            = 36 // int32
)

// Record fields. int64 fields are 8-byte aligned for atomic access.
const (
	parentIDOffset          = 0  // int32
	nameIDOffset            = 4  // int32
	flagsOffset             = 8  // int32
	attributeRecordIDOffset = 12 // int32
	contentRecordIDOffset   = 16 // int32
	modCountOffset          = 20 // int32
	timestampOffset         = 24 // int64
	lengthOffset            = 32 // int64
)

// Flags is a bitset of file record flags.
type Flags int32

const (
	FlagDirectory Flags = 1 << iota
	FlagSymlink
	FlagSpecial
	FlagReadOnly
	FlagHidden
	FlagDeleted
	FlagCaseSensitivityKnown
	FlagCaseSensitive
	FlagMustReloadLength
	FlagMustReloadContent
	FlagChildrenCached
	FlagCharsNullTerminated
)

// Has checks whether all bits of f2 are set in f.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Record is a snapshot of all fields of a file record.
type Record struct {
	ParentID          int32
	NameID            int32
	Flags             Flags
	AttributeRecordID int32
	ContentRecordID   int32
	// ModCount is read-only: it is stamped by the Table on every write.
	ModCount  int32
	Timestamp int64
	Length    int64
}

// slot is a RecordSize-long window into the mapped file.
type slot []byte

func (s slot) int32At(off int) *int32 {
	return (*int32)(unsafe.Pointer(&s[off]))
}

func (s slot) int64At(off int) *int64 {
	return (*int64)(unsafe.Pointer(&s[off]))
}

func (s slot) isZero() bool {
	for i := range s {
		if s[i] != 0 {
			return false
		}
	}
	return true
}
