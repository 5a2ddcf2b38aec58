package vfsdb

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"go.uber.org/zap"
)

// Open opens all storage files. In read-only mode nothing is created or
// modified and the ownership is not acquired.
func (db *DB) Open(readOnly bool) error {
	db.readOnly = readOnly

	if err := db.records.Open(readOnly); err != nil {
		return fmt.Errorf("open records: %w", err)
	}

	if err := db.blobs.Open(readOnly); err != nil {
		_ = db.records.Close()
		return fmt.Errorf("open attribute records: %w", err)
	}

	if err := db.enum.Open(readOnly); err != nil {
		_ = db.blobs.Close()
		_ = db.records.Close()
		return fmt.Errorf("open attribute enumerator: %w", err)
	}

	db.log.Debug("opened vfs storage", zap.String("path", db.path), zap.Bool("read-only", readOnly))

	return nil
}

// Init initializes storage components and acquires exclusive access to the
// storage. It fails with ErrOwnedByOtherProcess if another process holds it
// unless WithForceOwnership is set.
func (db *DB) Init() error {
	if err := db.blobs.Init(); err != nil {
		return fmt.Errorf("init attribute records: %w", err)
	}

	if err := db.enum.Init(); err != nil {
		return fmt.Errorf("init attribute enumerator: %w", err)
	}

	r := db.records.OpenReport()
	for i := range r.Findings {
		db.log.Warn("records file self-check", zap.String("finding", r.Findings[i]))
	}

	if !db.readOnly {
		owner, err := db.records.TryAcquireExclusiveAccess(db.pid, time.Now().UnixMilli(), db.forceOwnership)
		if err != nil {
			return fmt.Errorf("acquire exclusive access: %w", err)
		}

		if owner.ProcessID != db.pid {
			return OwnershipError{Owner: owner}
		}

		if !r.WasClosedProperly {
			db.log.Warn("storage was not closed properly, ownership taken over",
				zap.Int32("previous owner", r.PreviousOwner.ProcessID))
		}
	}

	db.metrics.SetRecordsAllocated(db.records.MaxAllocatedID())

	return nil
}

// Flush writes all changes to disk.
func (db *DB) Flush() error {
	if err := db.records.Flush(); err != nil {
		return fmt.Errorf("flush records: %w", err)
	}
	if err := db.blobs.Flush(); err != nil {
		return fmt.Errorf("flush attribute records: %w", err)
	}
	return nil
}

// Close releases the ownership and closes all storage files.
func (db *DB) Close() error {
	var errs []error

	if err := db.enum.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close attribute enumerator: %w", err))
	}
	if err := db.blobs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close attribute records: %w", err))
	}
	if err := db.records.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close records: %w", err))
	}

	return errors.Join(errs...)
}

// OpenReport returns the findings of the records file self-check.
func (db *DB) OpenReport() records.Report {
	return db.records.OpenReport()
}

// DumpRecordsAsHex writes all records in hex to w.
func (db *DB) DumpRecordsAsHex(w io.Writer) error {
	return db.records.DumpRecordsAsHex(w)
}

// Status is a summary of the records file header.
type Status struct {
	MaxAllocatedID    int32
	GlobalModCount    int32
	CreatedAt         time.Time
	Owner             records.OwnerInfo
	ErrorsAccumulated int32
	AttributeRecords  int
}

// Status returns the summary of the storage state.
func (db *DB) Status() Status {
	return Status{
		MaxAllocatedID:    db.records.MaxAllocatedID(),
		GlobalModCount:    db.records.GlobalModCount(),
		CreatedAt:         time.UnixMilli(db.records.CreatedAt()),
		Owner:             db.records.Owner(),
		ErrorsAccumulated: db.records.ErrorsAccumulated(),
		AttributeRecords:  db.blobs.LiveRecordsCount(),
	}
}
