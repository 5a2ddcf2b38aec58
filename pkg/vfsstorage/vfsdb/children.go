package vfsdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
)

// ChildrenAttribute is the name of the attribute holding the children list
// of a directory.
const ChildrenAttribute = "vfs.children"

var errChildrenCorrupted = errors.New("children list is corrupted")

// encodeChildren encodes sorted unique ids as a count followed by deltas.
func encodeChildren(ids []int32) []byte {
	b := make([]byte, 0, binary.MaxVarintLen32*(len(ids)+1))
	b = binary.AppendUvarint(b, uint64(len(ids)))

	var prev int32
	for _, id := range ids {
		b = binary.AppendUvarint(b, uint64(id-prev))
		prev = id
	}

	return b
}

func decodeChildren(b []byte) ([]int32, error) {
	if len(b) == 0 {
		return nil, nil
	}

	n, off := binary.Uvarint(b)
	if off <= 0 || n > uint64(len(b)) {
		return nil, fmt.Errorf("%w: invalid count", errChildrenCorrupted)
	}

	ids := make([]int32, 0, n)

	var prev uint64
	for i := uint64(0); i < n; i++ {
		d, l := binary.Uvarint(b[off:])
		if l <= 0 || d == 0 {
			return nil, fmt.Errorf("%w: invalid entry #%d", errChildrenCorrupted, i)
		}
		off += l

		prev += d
		if prev > math.MaxInt32 {
			return nil, fmt.Errorf("%w: entry #%d overflows", errChildrenCorrupted, i)
		}

		ids = append(ids, int32(prev))
	}

	if off != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", errChildrenCorrupted, len(b)-off)
	}

	return ids, nil
}

func normalizeChildren(ids []int32) ([]int32, error) {
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if len(ids) > 0 && ids[0] <= records.NullID {
		return nil, fmt.Errorf("invalid child id %d", ids[0])
	}

	return ids, nil
}

func (db *DB) readChildren(parentID int32) ([]int32, error) {
	b, _, err := db.ReadAttribute(parentID, ChildrenAttribute)
	if err != nil {
		return nil, err
	}

	ids, err := decodeChildren(b)
	if err != nil {
		return nil, db.reportErr("ListChildren", fmt.Errorf("directory %d: %w", parentID, err))
	}

	return ids, nil
}

// ListChildren returns sorted ids of the directory children.
func (db *DB) ListChildren(parentID int32) ([]int32, error) {
	defer elapsed("ListChildren", db.metrics.AddMethodDuration)()

	return db.readChildren(parentID)
}

// UpdateChildren replaces the children list of the directory with the
// result of f. Concurrent hierarchy updates of the directory wait, readers
// of the list are not blocked while f runs.
func (db *DB) UpdateChildren(parentID int32, f func([]int32) ([]int32, error)) error {
	defer elapsed("UpdateChildren", db.metrics.AddMethodDuration)()

	unlock := db.locks.LockForHierarchyUpdate(parentID)
	defer unlock()

	return db.updateChildren(parentID, f)
}

// updateChildren must be called under the hierarchy lock of the directory.
func (db *DB) updateChildren(parentID int32, f func([]int32) ([]int32, error)) error {
	cur, err := db.readChildren(parentID)
	if err != nil {
		return err
	}

	res, err := f(slices.Clone(cur))
	if err != nil {
		return err
	}

	res, err = normalizeChildren(res)
	if err != nil {
		return fmt.Errorf("directory %d: %w", parentID, err)
	}

	if slices.Equal(cur, res) {
		return nil
	}

	return db.WriteAttributeBytes(parentID, ChildrenAttribute, encodeChildren(res))
}

// MoveChild moves the child from one directory to another and re-parents it.
// Both children lists are locked, the lower id first.
func (db *DB) MoveChild(childID, fromID, toID int32) error {
	defer elapsed("MoveChild", db.metrics.AddMethodDuration)()

	if childID == toID {
		return fmt.Errorf("move %d into itself: %w", childID, records.ErrSelfParent)
	}

	for _, id := range []int32{childID, fromID, toID} {
		if _, err := db.records.Flags(id); err != nil {
			return err
		}
	}

	unlock := db.locks.LockForHierarchyUpdatePair(fromID, toID)
	defer unlock()

	if fromID != toID {
		err := db.updateChildren(fromID, func(ids []int32) ([]int32, error) {
			return slices.DeleteFunc(ids, func(id int32) bool { return id == childID }), nil
		})
		if err != nil {
			return fmt.Errorf("remove %d from directory %d: %w", childID, fromID, err)
		}
	}

	err := db.updateChildren(toID, func(ids []int32) ([]int32, error) {
		return append(ids, childID), nil
	})
	if err != nil {
		return fmt.Errorf("add %d to directory %d: %w", childID, toID, err)
	}

	return db.SetParent(childID, toID)
}
