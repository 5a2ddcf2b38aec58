package records

import (
	"errors"
	"sync/atomic"
)

// OwnerInfo describes the process owning the records file.
type OwnerInfo struct {
	// ProcessID is 0 if nobody owns the file.
	ProcessID int32
	// AcquiredAt is the Unix milliseconds timestamp of acquisition.
	AcquiredAt int64
}

var errZeroPID = errors.New("process id must be non-zero")

// Owner returns the current owner of the records file.
func (t *Table) Owner() OwnerInfo {
	return OwnerInfo{
		ProcessID:  atomic.LoadInt32(t.hdrInt32(hdrOwnerProcessIDOffset)),
		AcquiredAt: atomic.LoadInt64(t.hdrInt64(hdrOwnershipAcquiredAtOffset)),
	}
}

// TryAcquireExclusiveAccess makes pid the owner of the records file if nobody
// owns it, or unconditionally if forcibly is set. It returns the owner after
// the attempt: the acquisition succeeded iff the returned ProcessID is pid.
// Re-acquisition by the current owner succeeds and keeps the original
// timestamp.
func (t *Table) TryAcquireExclusiveAccess(pid int32, ts int64, forcibly bool) (OwnerInfo, error) {
	if err := t.checkWritable(); err != nil {
		return OwnerInfo{}, err
	}
	if pid == 0 {
		return OwnerInfo{}, errZeroPID
	}

	owner := t.hdrInt32(hdrOwnerProcessIDOffset)

	for {
		cur := atomic.LoadInt32(owner)
		if cur == pid {
			t.acquiredBy.Store(pid)
			return t.Owner(), nil
		}
		if cur != 0 && !forcibly {
			return t.Owner(), nil
		}

		if atomic.CompareAndSwapInt32(owner, cur, pid) {
			atomic.StoreInt64(t.hdrInt64(hdrOwnershipAcquiredAtOffset), ts)
			t.acquiredBy.Store(pid)
			return OwnerInfo{ProcessID: pid, AcquiredAt: ts}, nil
		}
	}
}

// TryReleaseExclusiveAccess releases the ownership if pid is the current
// owner and reports whether it did.
func (t *Table) TryReleaseExclusiveAccess(pid int32) (bool, error) {
	if err := t.checkWritable(); err != nil {
		return false, err
	}
	if pid == 0 {
		return false, errZeroPID
	}

	if !atomic.CompareAndSwapInt32(t.hdrInt32(hdrOwnerProcessIDOffset), pid, 0) {
		return false, nil
	}

	atomic.StoreInt64(t.hdrInt64(hdrOwnershipAcquiredAtOffset), 0)
	t.acquiredBy.CompareAndSwap(pid, 0)

	return true, nil
}
