package attributes

import (
	"encoding/binary"
	"fmt"
)

const (
	// InlineThreshold is the size starting from which attribute values are
	// moved out of the directory record into a dedicated one.
	InlineThreshold = 64

	// MaxAttributeID is the largest supported attribute id.
	MaxAttributeID = 1<<14 - 1
)

// Entry header tiers.
//
//	tiny:   0aaassss
//	medium: 10aaaaaa ssssssss
//	big:    11aaaaaa aaaaaaaa ssssssss ssssssss ssssssss ssssssss
//
// where a is the attribute id and s is the inline value size or the
// reference to a dedicated record.
const (
	tinyHeaderSize   = 1
	mediumHeaderSize = 2
	bigHeaderSize    = 6

	tinyMaxAttrID    = 1<<3 - 1
	tinyMaxSizeOrRef = 1<<4 - 1

	mediumMaxAttrID    = 1<<6 - 1
	mediumMaxSizeOrRef = 1<<8 - 1

	mediumBit = 0x80
	bigBit    = 0x40
)

// entry describes a single attribute entry of a directory record.
type entry struct {
	attrID    int32
	sizeOrRef int32

	// offset of the entry header in the record.
	offset     int
	headerSize int
}

func (e entry) inlined() bool {
	return e.sizeOrRef < InlineThreshold
}

func (e entry) dedicatedID() int32 {
	return e.sizeOrRef - InlineThreshold
}

func (e entry) valueOffset() int {
	return e.offset + e.headerSize
}

// size returns the full length of the entry in the record.
func (e entry) size() int {
	if e.inlined() {
		return e.headerSize + int(e.sizeOrRef)
	}
	return e.headerSize
}

func headerSizeFor(attrID, sizeOrRef int32) int {
	switch {
	case attrID <= tinyMaxAttrID && sizeOrRef <= tinyMaxSizeOrRef:
		return tinyHeaderSize
	case attrID <= mediumMaxAttrID && sizeOrRef <= mediumMaxSizeOrRef:
		return mediumHeaderSize
	default:
		return bigHeaderSize
	}
}

// putHeader writes the smallest header fitting the values into b and
// returns its size. b must be long enough.
func putHeader(b []byte, attrID, sizeOrRef int32) int {
	switch sz := headerSizeFor(attrID, sizeOrRef); sz {
	case tinyHeaderSize:
		b[0] = byte(attrID<<4 | sizeOrRef)
		return sz
	case mediumHeaderSize:
		b[0] = mediumBit | byte(attrID)
		b[1] = byte(sizeOrRef)
		return sz
	default:
		b[0] = mediumBit | bigBit | byte(attrID>>8)
		b[1] = byte(attrID)
		binary.BigEndian.PutUint32(b[2:], uint32(sizeOrRef))
		return sz
	}
}

// encodeEntry returns an entry holding the value inline or, if ref is not
// NullID, a reference to the dedicated record.
func encodeEntry(attrID int32, value []byte, ref int32) []byte {
	sizeOrRef := int32(len(value))
	if ref != nullID {
		sizeOrRef = InlineThreshold + ref
		value = nil
	}

	b := make([]byte, headerSizeFor(attrID, sizeOrRef)+len(value))
	n := putHeader(b, attrID, sizeOrRef)
	copy(b[n:], value)

	return b
}

// parseEntry decodes the entry starting at off.
func parseEntry(rec []byte, off int) (entry, error) {
	e := entry{offset: off}

	first := rec[off]

	switch {
	case first&mediumBit == 0:
		e.headerSize = tinyHeaderSize
		e.attrID = int32(first >> 4)
		e.sizeOrRef = int32(first & tinyMaxSizeOrRef)
	case first&bigBit == 0:
		if off+mediumHeaderSize > len(rec) {
			return e, fmt.Errorf("truncated entry header at offset %d", off)
		}
		e.headerSize = mediumHeaderSize
		e.attrID = int32(first &^ mediumBit)
		e.sizeOrRef = int32(rec[off+1])
	default:
		if off+bigHeaderSize > len(rec) {
			return e, fmt.Errorf("truncated entry header at offset %d", off)
		}
		e.headerSize = bigHeaderSize
		e.attrID = int32(first&^(mediumBit|bigBit))<<8 | int32(rec[off+1])
		e.sizeOrRef = int32(binary.BigEndian.Uint32(rec[off+2:]))
		if e.sizeOrRef < 0 {
			return e, fmt.Errorf("negative size or reference %d at offset %d", e.sizeOrRef, off)
		}
	}

	if off+e.size() > len(rec) {
		return e, fmt.Errorf("entry of attribute %d at offset %d overflows the record (%d > %d)",
			e.attrID, off, off+e.size(), len(rec))
	}

	return e, nil
}
