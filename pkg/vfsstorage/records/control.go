package records

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/nspcc-dev/neofs-vfs/pkg/util"
	"go.uber.org/zap"
)

// Report groups the advisory findings of the self-check made on open.
type Report struct {
	// WasClosedProperly is true if no process owned the file at open.
	WasClosedProperly bool
	// PreviousOwner is the owner recorded in the header at open.
	PreviousOwner OwnerInfo
	// ErrorsAccumulated is the header error counter at open.
	ErrorsAccumulated int32
	// ExhaustiveCheck is true if the whole unallocated region was verified.
	ExhaustiveCheck bool
	// OwnerRunning is true if the file was opened read-only while the owner
	// process is running. Non-empty slots past the allocated region are
	// then reported as findings since the owner may be allocating them.
	OwnerRunning bool
	// Findings are human-readable notes about suspicious state.
	Findings []string
}

// Open maps the records file at the configured path, creating it if it does
// not exist (unless readOnly), and runs the self-check.
//
// A non-empty slot past MaxAllocatedID is reported as ErrCorrupted and fails
// Open, unless the file is opened read-only while its owner is running.
// Other findings are advisory, see OpenReport.
func (t *Table) Open(readOnly bool) error {
	if err := t.checkPageSize(t.pageSize); err != nil {
		return err
	}

	t.readOnly = readOnly

	flags := os.O_RDONLY
	if !readOnly {
		flags = os.O_RDWR | os.O_CREATE

		err := util.MkdirAllX(filepath.Dir(t.path), t.perm)
		if err != nil {
			return fmt.Errorf("create directory for records file %q: %w", t.path, err)
		}
	}

	f, err := os.OpenFile(t.path, flags, t.perm)
	if err != nil {
		return fmt.Errorf("open records file %q: %w", t.path, err)
	}

	t.file = f

	err = t.open()
	if err != nil {
		_ = t.unmapAll()
		_ = f.Close()
		return err
	}

	return nil
}

func (t *Table) checkPageSize(sz int) error {
	if sz < RecordSize*2 || sz%osPageSize() != 0 {
		return fmt.Errorf("invalid page size %d: must be a multiple of %d", sz, osPageSize())
	}
	return nil
}

func (t *Table) open() error {
	fi, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat records file: %w", err)
	}

	size := fi.Size()
	fresh := size == 0

	if fresh {
		if t.readOnly {
			return fmt.Errorf("records file %q is empty", t.path)
		}

		t.log.Debug("creating records file", zap.String("path", t.path), zap.Int("page size", t.pageSize))
	} else {
		stored, err := readStoredPageSize(t.file)
		if err != nil {
			return err
		}

		if stored != 0 && int(stored) != t.pageSize {
			if err := t.checkPageSize(int(stored)); err != nil {
				return fmt.Errorf("%w: %v", ErrCorrupted, err)
			}

			t.log.Info("page size differs from the configured one, using stored",
				zap.Int32("stored", stored), zap.Int("configured", t.pageSize))
			t.pageSize = int(stored)
		}
	}

	t.slotsPerPage = int32(t.pageSize / RecordSize)

	empty := make([]slot, 0)
	t.pages.Store(&empty)

	pages := int(size / int64(t.pageSize))
	if size%int64(t.pageSize) != 0 {
		if t.readOnly {
			return fmt.Errorf("%w: file size %d is not a multiple of page size %d", ErrCorrupted, size, t.pageSize)
		}
		pages++
	}
	if pages == 0 {
		pages = 1
	}

	if err := t.ensurePages(int32(pages)*t.slotsPerPage - 1); err != nil {
		return err
	}

	if fresh {
		atomic.StoreInt32(t.hdrInt32(hdrVersionOffset), Version)
		atomic.StoreInt32(t.hdrInt32(hdrPageSizeOffset), int32(t.pageSize))
		atomic.StoreInt64(t.hdrInt64(hdrCreatedAtOffset), time.Now().UnixMilli())
	} else if v := atomic.LoadInt32(t.hdrInt32(hdrVersionOffset)); v != Version {
		return fmt.Errorf("%w: file version %d, supported %d", ErrIncompatibleVersion, v, Version)
	}

	return t.selfCheck()
}

func readStoredPageSize(f *os.File) (int32, error) {
	buf := make([]byte, RecordSize)

	_, err := f.ReadAt(buf, 0)
	if err != nil {
		return 0, fmt.Errorf("read records file header: %w", err)
	}

	return atomic.LoadInt32(slot(buf).int32At(hdrPageSizeOffset)), nil
}

func (t *Table) selfCheck() error {
	owner := t.Owner()

	r := Report{
		WasClosedProperly: owner.ProcessID == 0,
		PreviousOwner:     owner,
		ErrorsAccumulated: t.ErrorsAccumulated(),
	}

	r.OwnerRunning = t.readOnly && owner.ProcessID != 0 && processAlive(owner.ProcessID)

	if r.OwnerRunning {
		r.Findings = append(r.Findings, fmt.Sprintf("opened read-only while owned by running process %d",
			owner.ProcessID))
	} else if !r.WasClosedProperly {
		r.Findings = append(r.Findings, fmt.Sprintf("not closed properly: still owned by process %d (since %s)",
			owner.ProcessID, time.UnixMilli(owner.AcquiredAt).UTC().Format(time.RFC3339)))
	}
	if r.ErrorsAccumulated > 0 {
		r.Findings = append(r.Findings, fmt.Sprintf("%d errors accumulated", r.ErrorsAccumulated))
	}

	r.ExhaustiveCheck = t.exhaustive || !r.WasClosedProperly || r.ErrorsAccumulated > 0

	defer func() { t.report = r }()

	maxID := t.MaxAllocatedID()
	if r.OwnerRunning && maxID >= t.mappedSlots() {
		// the owner has grown the file since it was mapped
		r.Findings = append(r.Findings, fmt.Sprintf("allocated records count %d exceeds mapped capacity %d",
			maxID, t.mappedSlots()-1))
		return nil
	}
	if maxID < 0 || maxID >= t.mappedSlots() {
		return fmt.Errorf("%w: allocated records count %d exceeds file capacity %d",
			ErrCorrupted, maxID, t.mappedSlots()-1)
	}

	last := t.mappedSlots() - 1
	if !r.ExhaustiveCheck && int64(maxID)+int64(t.sampleSize) < int64(last) {
		last = maxID + int32(t.sampleSize)
	}

	for id := maxID + 1; id <= last; id++ {
		if !t.slotFor(id).isZero() {
			if r.OwnerRunning {
				r.Findings = append(r.Findings, fmt.Sprintf("record #%d is beyond the allocated region (max allocated id %d) but not empty, likely allocated by the owner",
					id, maxID))
				break
			}
			return fmt.Errorf("%w: record #%d is beyond the allocated region (max allocated id %d) but not empty",
				ErrCorrupted, id, maxID)
		}
	}

	t.log.Debug("records file self-check passed",
		zap.Int32("max allocated id", maxID),
		zap.Bool("exhaustive", r.ExhaustiveCheck),
		zap.Bool("closed properly", r.WasClosedProperly))

	return nil
}

// OpenReport returns the self-check report made on open.
func (t *Table) OpenReport() Report {
	return t.report
}

// WasClosedProperly reports whether no process owned the file when it was opened.
func (t *Table) WasClosedProperly() bool {
	return t.report.WasClosedProperly
}

// ensurePages maps pages until slot id is covered.
func (t *Table) ensurePages(id int32) error {
	need := int(id/t.slotsPerPage) + 1
	if len(*t.pages.Load()) >= need {
		return nil
	}

	t.growMtx.Lock()
	defer t.growMtx.Unlock()

	cur := *t.pages.Load()
	if len(cur) >= need {
		return nil
	}

	fi, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat records file: %w", err)
	}

	if required := int64(need) * int64(t.pageSize); fi.Size() < required {
		if t.readOnly {
			return ErrReadOnly
		}
		if err := t.file.Truncate(required); err != nil {
			return fmt.Errorf("grow records file to %d bytes: %w", required, err)
		}
	}

	next := make([]slot, len(cur), need)
	copy(next, cur)

	for i := len(cur); i < need; i++ {
		p, err := mapPage(t.file, int64(i)*int64(t.pageSize), t.pageSize, t.readOnly)
		if err != nil {
			// keep what is mapped so Close can release it
			t.pages.Store(&next)
			return fmt.Errorf("map page #%d: %w", i, err)
		}
		next = append(next, p)
	}

	t.pages.Store(&next)

	return nil
}

// Flush synchronizes all mapped pages with the file.
func (t *Table) Flush() error {
	if t.readOnly {
		return nil
	}

	for i, p := range *t.pages.Load() {
		if err := syncPage(p); err != nil {
			return fmt.Errorf("sync page #%d: %w", i, err)
		}
	}

	return nil
}

// Close releases exclusive access acquired through this Table, flushes and
// unmaps the file.
func (t *Table) Close() error {
	var errs []error

	if pid := t.acquiredBy.Load(); pid != 0 && !t.readOnly {
		if _, err := t.TryReleaseExclusiveAccess(pid); err != nil {
			errs = append(errs, err)
		}
	}

	if err := t.Flush(); err != nil {
		errs = append(errs, err)
	}

	if err := t.unmapAll(); err != nil {
		errs = append(errs, err)
	}

	t.log.Debug("closing records file", zap.String("path", t.path))

	if err := t.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close records file: %w", err))
	}

	return errors.Join(errs...)
}

func (t *Table) unmapAll() error {
	p := t.pages.Load()
	if p == nil {
		return nil
	}

	var errs []error
	for i := range *p {
		if err := unmapPage((*p)[i]); err != nil {
			errs = append(errs, fmt.Errorf("unmap page #%d: %w", i, err))
		}
	}

	empty := make([]slot, 0)
	t.pages.Store(&empty)

	return errors.Join(errs...)
}
