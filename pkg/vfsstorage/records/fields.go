package records

import (
	"fmt"
	"math"
	"sync/atomic"
)

// AllocateRecord allocates a new zeroed record and returns its identifier.
// Identifiers are never reused.
func (t *Table) AllocateRecord() (int32, error) {
	if err := t.checkWritable(); err != nil {
		return NullID, err
	}

	mod, err := t.nextModCount()
	if err != nil {
		return NullID, err
	}

	allocated := t.hdrInt32(hdrRecordsAllocatedOffset)

	for {
		cur := atomic.LoadInt32(allocated)
		if cur == math.MaxInt32 {
			return NullID, ErrNoSpace
		}

		id := cur + 1

		// map the page before the id becomes visible to readers
		if err := t.ensurePages(id); err != nil {
			return NullID, err
		}

		if atomic.CompareAndSwapInt32(allocated, cur, id) {
			s := t.slotFor(id)
			clearSlot(s)
			installModCount(s, mod)
			return id, nil
		}
	}
}

func clearSlot(s slot) {
	for _, off := range []int{parentIDOffset, nameIDOffset, flagsOffset, attributeRecordIDOffset, contentRecordIDOffset} {
		atomic.StoreInt32(s.int32At(off), 0)
	}
	atomic.StoreInt64(s.int64At(timestampOffset), 0)
	atomic.StoreInt64(s.int64At(lengthOffset), 0)
}

// nextModCount increments the global modification counter. The counter
// never wraps: at math.MaxInt32 every modification fails.
func (t *Table) nextModCount() (int32, error) {
	p := t.hdrInt32(hdrGlobalModCountOffset)

	for {
		cur := atomic.LoadInt32(p)
		if cur == math.MaxInt32 {
			return 0, ErrModCountOverflow
		}
		if atomic.CompareAndSwapInt32(p, cur, cur+1) {
			return cur + 1, nil
		}
	}
}

// installModCount sets the record's modCount to mod unless a racing writer
// has already installed a bigger one.
func installModCount(s slot, mod int32) {
	p := s.int32At(modCountOffset)

	for {
		cur := atomic.LoadInt32(p)
		if cur >= mod || atomic.CompareAndSwapInt32(p, cur, mod) {
			return
		}
	}
}

func (t *Table) getInt32(id int32, off int) (int32, error) {
	if err := t.checkID(id); err != nil {
		return 0, err
	}
	return atomic.LoadInt32(t.slotFor(id).int32At(off)), nil
}

func (t *Table) getInt64(id int32, off int) (int64, error) {
	if err := t.checkID(id); err != nil {
		return 0, err
	}
	return atomic.LoadInt64(t.slotFor(id).int64At(off)), nil
}

func (t *Table) setInt32(id int32, off int, v int32) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := t.checkID(id); err != nil {
		return err
	}

	mod, err := t.nextModCount()
	if err != nil {
		return err
	}

	s := t.slotFor(id)
	atomic.StoreInt32(s.int32At(off), v)
	installModCount(s, mod)

	return nil
}

func (t *Table) setInt64(id int32, off int, v int64) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := t.checkID(id); err != nil {
		return err
	}

	mod, err := t.nextModCount()
	if err != nil {
		return err
	}

	s := t.slotFor(id)
	atomic.StoreInt64(s.int64At(off), v)
	installModCount(s, mod)

	return nil
}

func (t *Table) checkParent(id, parent int32) error {
	if parent == id {
		return fmt.Errorf("%w: %d", ErrSelfParent, id)
	}
	if parent == NullID {
		return nil
	}
	if err := t.checkID(parent); err != nil {
		return fmt.Errorf("parent of %d: %w", id, err)
	}
	return nil
}

// ReadRecord returns all fields of the record. Fields are read one by one:
// callers needing a consistent snapshot must exclude concurrent writers.
func (t *Table) ReadRecord(id int32) (Record, error) {
	if err := t.checkID(id); err != nil {
		return Record{}, err
	}

	s := t.slotFor(id)

	return Record{
		ParentID:          atomic.LoadInt32(s.int32At(parentIDOffset)),
		NameID:            atomic.LoadInt32(s.int32At(nameIDOffset)),
		Flags:             Flags(atomic.LoadInt32(s.int32At(flagsOffset))),
		AttributeRecordID: atomic.LoadInt32(s.int32At(attributeRecordIDOffset)),
		ContentRecordID:   atomic.LoadInt32(s.int32At(contentRecordIDOffset)),
		ModCount:          atomic.LoadInt32(s.int32At(modCountOffset)),
		Timestamp:         atomic.LoadInt64(s.int64At(timestampOffset)),
		Length:            atomic.LoadInt64(s.int64At(lengthOffset)),
	}, nil
}

// UpdateRecord passes the record to the updater and stores the fields back if
// the updater reports a change. NullID allocates a new record first. Returns
// the identifier of the updated record.
func (t *Table) UpdateRecord(id int32, f func(*Record) bool) (int32, error) {
	if err := t.checkWritable(); err != nil {
		return NullID, err
	}

	if id == NullID {
		var err error
		if id, err = t.AllocateRecord(); err != nil {
			return NullID, err
		}
	}

	rec, err := t.ReadRecord(id)
	if err != nil {
		return NullID, err
	}

	if !f(&rec) {
		return id, nil
	}

	if err := t.checkParent(id, rec.ParentID); err != nil {
		return NullID, err
	}

	mod, err := t.nextModCount()
	if err != nil {
		return NullID, err
	}

	s := t.slotFor(id)
	atomic.StoreInt32(s.int32At(parentIDOffset), rec.ParentID)
	atomic.StoreInt32(s.int32At(nameIDOffset), rec.NameID)
	atomic.StoreInt32(s.int32At(flagsOffset), int32(rec.Flags))
	atomic.StoreInt32(s.int32At(attributeRecordIDOffset), rec.AttributeRecordID)
	atomic.StoreInt32(s.int32At(contentRecordIDOffset), rec.ContentRecordID)
	atomic.StoreInt64(s.int64At(timestampOffset), rec.Timestamp)
	atomic.StoreInt64(s.int64At(lengthOffset), rec.Length)
	installModCount(s, mod)

	return id, nil
}

// Parent returns the parent identifier of the record.
func (t *Table) Parent(id int32) (int32, error) { return t.getInt32(id, parentIDOffset) }

// SetParent sets the parent of the record. parent must be NullID or an
// allocated identifier other than id.
func (t *Table) SetParent(id, parent int32) error {
	if err := t.checkParent(id, parent); err != nil {
		return err
	}
	return t.setInt32(id, parentIDOffset, parent)
}

// NameID returns the name identifier of the record.
func (t *Table) NameID(id int32) (int32, error) { return t.getInt32(id, nameIDOffset) }

// SetNameID sets the name identifier of the record.
func (t *Table) SetNameID(id, nameID int32) error { return t.setInt32(id, nameIDOffset, nameID) }

// Flags returns the flags of the record.
func (t *Table) Flags(id int32) (Flags, error) {
	v, err := t.getInt32(id, flagsOffset)
	return Flags(v), err
}

// SetFlags sets the flags of the record.
func (t *Table) SetFlags(id int32, flags Flags) error {
	return t.setInt32(id, flagsOffset, int32(flags))
}

// AttributeRecordID returns the identifier of the attribute directory record.
func (t *Table) AttributeRecordID(id int32) (int32, error) {
	return t.getInt32(id, attributeRecordIDOffset)
}

// SetAttributeRecordID sets the identifier of the attribute directory record.
func (t *Table) SetAttributeRecordID(id, recordID int32) error {
	return t.setInt32(id, attributeRecordIDOffset, recordID)
}

// ContentRecordID returns the identifier of the content record.
func (t *Table) ContentRecordID(id int32) (int32, error) {
	return t.getInt32(id, contentRecordIDOffset)
}

// SetContentRecordID sets the identifier of the content record.
func (t *Table) SetContentRecordID(id, recordID int32) error {
	return t.setInt32(id, contentRecordIDOffset, recordID)
}

// ModCount returns the modification stamp of the record.
func (t *Table) ModCount(id int32) (int32, error) { return t.getInt32(id, modCountOffset) }

// Timestamp returns the timestamp of the record.
func (t *Table) Timestamp(id int32) (int64, error) { return t.getInt64(id, timestampOffset) }

// SetTimestamp sets the timestamp of the record.
func (t *Table) SetTimestamp(id int32, ts int64) error { return t.setInt64(id, timestampOffset, ts) }

// Length returns the length of the record.
func (t *Table) Length(id int32) (int64, error) { return t.getInt64(id, lengthOffset) }

// SetLength sets the length of the record.
func (t *Table) SetLength(id int32, length int64) error { return t.setInt64(id, lengthOffset, length) }
