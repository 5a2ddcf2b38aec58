package vfsdb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nspcc-dev/neofs-vfs/pkg/util"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"go.uber.org/zap"
)

// SanityProblem is a violation found in a single file record.
type SanityProblem struct {
	FileID int32
	Err    error
}

// SanityReport is the result of CheckSanity.
type SanityReport struct {
	RecordsChecked int
	Problems       []SanityProblem
}

// CheckSanity verifies every file record: its parent reference, its
// attribute records and, for directories, the children list. progress, if
// set, is called after each checked record from worker goroutines.
//
// Found problems are returned in the report, error is returned only if the
// check could not be finished.
func (db *DB) CheckSanity(ctx context.Context, progress func()) (SanityReport, error) {
	defer elapsed("CheckSanity", db.metrics.AddMethodDuration)()

	pool, err := util.NewWorkerPool(db.sanityWorkers)
	if err != nil {
		return SanityReport{}, err
	}
	defer pool.Release()

	var (
		wg  sync.WaitGroup
		mtx sync.Mutex
		r   SanityReport
	)

	maxID := db.records.MaxAllocatedID()

loop:
	for id := int32(1); id <= maxID; id++ {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		id := id

		wg.Add(1)
		err = pool.Submit(func() {
			defer wg.Done()

			err := db.checkRecord(id, maxID)

			mtx.Lock()
			r.RecordsChecked++
			if err != nil {
				r.Problems = append(r.Problems, SanityProblem{FileID: id, Err: err})
			}
			mtx.Unlock()

			if progress != nil {
				progress()
			}
		})
		if err != nil {
			wg.Done()
			break
		}
	}

	wg.Wait()

	if err != nil {
		return r, fmt.Errorf("submit sanity check task: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	sort.Slice(r.Problems, func(i, j int) bool { return r.Problems[i].FileID < r.Problems[j].FileID })

	for i := range r.Problems {
		db.log.Warn("sanity check problem", zap.Int32("file", r.Problems[i].FileID), zap.Error(r.Problems[i].Err))
	}

	if len(r.Problems) > 0 {
		db.metrics.IncCorruptionErrors()
	}

	if len(r.Problems) > 0 && !db.readOnly {
		if err := db.records.IncrementErrorsAccumulated(); err != nil {
			db.log.Warn("can't record corruption in the header", zap.Error(err))
		}
	}

	return r, nil
}

func (db *DB) checkRecord(id, maxID int32) error {
	l := db.locks.LockFor(id)
	l.RLock()
	rec, err := db.records.ReadRecord(id)
	if err == nil {
		err = db.attrs.CheckRecordSanity(id, rec.AttributeRecordID)
	}
	l.RUnlock()

	if err != nil {
		return err
	}

	if rec.Flags.Has(records.FlagDeleted) {
		if rec.ParentID != records.NullID || rec.AttributeRecordID != records.NullID {
			return fmt.Errorf("%w: deleted record is not cleared", records.ErrCorrupted)
		}
		return nil
	}

	switch {
	case rec.ParentID == id:
		return fmt.Errorf("%w: record is its own parent", records.ErrCorrupted)
	case rec.ParentID < records.NullID || rec.ParentID > maxID:
		return fmt.Errorf("%w: parent %d is out of [0..%d]", records.ErrCorrupted, rec.ParentID, maxID)
	}

	if !rec.Flags.Has(records.FlagDirectory) {
		return nil
	}

	children, err := db.readChildren(id)
	if err != nil {
		return err
	}

	for _, child := range children {
		if child > maxID {
			return fmt.Errorf("%w: child %d is out of range", errChildrenCorrupted, child)
		}

		parent, err := db.records.Parent(child)
		if err != nil {
			return err
		}
		if parent != id {
			return fmt.Errorf("%w: child %d refers to parent %d", errChildrenCorrupted, child, parent)
		}
	}

	return nil
}
