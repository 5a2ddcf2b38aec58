package vfsdb

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attributes"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"go.uber.org/zap"
)

// ErrOwnedByOtherProcess is returned by Init when another process holds the
// storage.
var ErrOwnedByOtherProcess = errors.New("storage is owned by another process")

var errWriterClosed = errors.New("attribute writer is closed")

// OwnershipError describes failed acquisition of the storage.
type OwnershipError struct {
	Owner records.OwnerInfo
}

func (e OwnershipError) Error() string {
	return fmt.Sprintf("%v: process %d since %d", ErrOwnedByOtherProcess, e.Owner.ProcessID, e.Owner.AcquiredAt)
}

func (e OwnershipError) Unwrap() error {
	return ErrOwnedByOtherProcess
}

// IsCorrupted checks whether the error reports storage corruption.
func IsCorrupted(err error) bool {
	return errors.Is(err, records.ErrCorrupted) ||
		errors.Is(err, attributes.ErrCorrupted) ||
		errors.Is(err, errChildrenCorrupted)
}

// reportErr remembers corruption in the records file header so the next
// open runs the full self-check.
func (db *DB) reportErr(op string, err error) error {
	if err == nil || !IsCorrupted(err) {
		return err
	}

	db.log.Error("storage corruption detected", zap.String("op", op), zap.Error(err))
	db.metrics.IncCorruptionErrors()

	if !db.readOnly {
		if err := db.records.IncrementErrorsAccumulated(); err != nil {
			db.log.Warn("can't record corruption in the header", zap.Error(err))
		}
	}

	return err
}
