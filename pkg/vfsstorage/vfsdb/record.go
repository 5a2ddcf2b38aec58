package vfsdb

import (
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
)

// CreateRecord allocates a new empty file record.
func (db *DB) CreateRecord() (int32, error) {
	defer elapsed("CreateRecord", db.metrics.AddMethodDuration)()

	id, err := db.records.AllocateRecord()
	if err != nil {
		return records.NullID, err
	}

	db.metrics.SetRecordsAllocated(id)

	return id, nil
}

// ReadRecord returns a consistent snapshot of the file record. Concurrent
// writers are detected optimistically, the read lock is taken only if one
// interfered.
func (db *DB) ReadRecord(fileID int32) (rec records.Record, err error) {
	defer elapsed("ReadRecord", db.metrics.AddMethodDuration)()

	db.locks.LockFor(fileID).OptimisticRead(func() {
		rec, err = db.records.ReadRecord(fileID)
	})

	return rec, err
}

// UpdateRecord atomically modifies the file record, see records.Table.
// NullID creates a new record.
func (db *DB) UpdateRecord(fileID int32, f func(*records.Record) bool) (int32, error) {
	defer elapsed("UpdateRecord", db.metrics.AddMethodDuration)()

	if fileID == records.NullID {
		id, err := db.CreateRecord()
		if err != nil {
			return records.NullID, err
		}
		fileID = id
	}

	l := db.locks.LockFor(fileID)
	l.Lock()
	defer l.Unlock()

	return db.records.UpdateRecord(fileID, f)
}

// withWriteLock makes the single-field write visible to optimistic readers.
func (db *DB) withWriteLock(fileID int32, f func() error) error {
	l := db.locks.LockFor(fileID)
	l.Lock()
	defer l.Unlock()

	return f()
}

// GetFlags returns flags of the file.
func (db *DB) GetFlags(fileID int32) (records.Flags, error) {
	return db.records.Flags(fileID)
}

// SetFlags sets flags of the file.
func (db *DB) SetFlags(fileID int32, flags records.Flags) error {
	return db.withWriteLock(fileID, func() error {
		return db.records.SetFlags(fileID, flags)
	})
}

// GetParent returns the parent of the file.
func (db *DB) GetParent(fileID int32) (int32, error) {
	return db.records.Parent(fileID)
}

// SetParent sets the parent of the file. It does not update children lists,
// see MoveChild.
func (db *DB) SetParent(fileID, parentID int32) error {
	return db.withWriteLock(fileID, func() error {
		return db.records.SetParent(fileID, parentID)
	})
}

// GetNameID returns the name id of the file.
func (db *DB) GetNameID(fileID int32) (int32, error) {
	return db.records.NameID(fileID)
}

// SetNameID sets the name id of the file.
func (db *DB) SetNameID(fileID, nameID int32) error {
	return db.withWriteLock(fileID, func() error {
		return db.records.SetNameID(fileID, nameID)
	})
}

// GetLength returns the length of the file.
func (db *DB) GetLength(fileID int32) (int64, error) {
	return db.records.Length(fileID)
}

// SetLength sets the length of the file.
func (db *DB) SetLength(fileID int32, length int64) error {
	return db.withWriteLock(fileID, func() error {
		return db.records.SetLength(fileID, length)
	})
}

// GetTimestamp returns the timestamp of the file.
func (db *DB) GetTimestamp(fileID int32) (int64, error) {
	return db.records.Timestamp(fileID)
}

// SetTimestamp sets the timestamp of the file.
func (db *DB) SetTimestamp(fileID int32, ts int64) error {
	return db.withWriteLock(fileID, func() error {
		return db.records.SetTimestamp(fileID, ts)
	})
}

// GetContentRecordID returns the content record reference of the file.
func (db *DB) GetContentRecordID(fileID int32) (int32, error) {
	return db.records.ContentRecordID(fileID)
}

// SetContentRecordID sets the content record reference of the file.
func (db *DB) SetContentRecordID(fileID, recordID int32) error {
	return db.withWriteLock(fileID, func() error {
		return db.records.SetContentRecordID(fileID, recordID)
	})
}

// GetModCount returns the modification stamp of the file.
func (db *DB) GetModCount(fileID int32) (int32, error) {
	return db.records.ModCount(fileID)
}

// MarkDeleted drops attributes of the file and clears its record leaving
// only the deleted flag. Record ids are never reused.
func (db *DB) MarkDeleted(fileID int32) error {
	defer elapsed("MarkDeleted", db.metrics.AddMethodDuration)()

	return db.withWriteLock(fileID, func() error {
		if err := db.attrs.DeleteAttributes(fileID); err != nil {
			return db.reportErr("MarkDeleted", err)
		}

		_, err := db.records.UpdateRecord(fileID, func(r *records.Record) bool {
			*r = records.Record{Flags: records.FlagDeleted}
			return true
		})

		return err
	})
}
