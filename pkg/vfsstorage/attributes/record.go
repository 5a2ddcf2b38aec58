package attributes

import (
	"encoding/binary"
	"fmt"
)

const (
	nullID = 0

	fileIDSize = 4

	directoryHeaderSize = fileIDSize
	// negated file id and attribute id
	dedicatedHeaderSize = fileIDSize + 4
)

func newDirectory(fileID int32, entry []byte) []byte {
	b := make([]byte, directoryHeaderSize, directoryHeaderSize+len(entry))
	binary.BigEndian.PutUint32(b, uint32(fileID))
	return append(b, entry...)
}

// parseDirectory decodes all entries of the directory record owned by
// fileID.
func parseDirectory(fileID, recordID int32, rec []byte) ([]entry, error) {
	if len(rec) < directoryHeaderSize {
		return nil, fmt.Errorf("%w: directory record %d is %d bytes long", ErrCorrupted, recordID, len(rec))
	}

	if owner := int32(binary.BigEndian.Uint32(rec)); owner != fileID {
		return nil, fmt.Errorf("%w: directory record %d belongs to file %d, expected %d",
			ErrCorrupted, recordID, owner, fileID)
	}

	var entries []entry

	for off := directoryHeaderSize; off < len(rec); {
		e, err := parseEntry(rec, off)
		if err != nil {
			return nil, fmt.Errorf("%w: directory record %d of file %d: %v", ErrCorrupted, recordID, fileID, err)
		}

		entries = append(entries, e)
		off += e.size()
	}

	return entries, nil
}

func findEntry(entries []entry, attrID int32) (entry, bool) {
	for i := range entries {
		if entries[i].attrID == attrID {
			return entries[i], true
		}
	}
	return entry{}, false
}

func newDedicated(fileID, attrID int32, value []byte) []byte {
	b := make([]byte, dedicatedHeaderSize+len(value))
	binary.BigEndian.PutUint32(b, uint32(-fileID))
	binary.BigEndian.PutUint32(b[fileIDSize:], uint32(attrID))
	copy(b[dedicatedHeaderSize:], value)
	return b
}

// checkDedicated verifies the back-reference of the dedicated record and
// returns its value.
func checkDedicated(fileID, attrID, recordID int32, rec []byte) ([]byte, error) {
	if len(rec) < dedicatedHeaderSize {
		return nil, fmt.Errorf("%w: dedicated record %d is %d bytes long", ErrCorrupted, recordID, len(rec))
	}

	owner := -int32(binary.BigEndian.Uint32(rec))
	attr := int32(binary.BigEndian.Uint32(rec[fileIDSize:]))

	if owner != fileID || attr != attrID {
		return nil, fmt.Errorf("%w: dedicated record %d refers to (file %d, attribute %d), expected (%d, %d)",
			ErrCorrupted, recordID, owner, attr, fileID, attrID)
	}

	return rec[dedicatedHeaderSize:], nil
}
