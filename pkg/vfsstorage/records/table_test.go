package records

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTable(t *testing.T, path string, opts ...Option) *Table {
	opts = append([]Option{
		WithPath(path),
		WithPageSize(os.Getpagesize()),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)

	return New(opts...)
}

func openTable(t *testing.T, path string, readOnly bool, opts ...Option) *Table {
	tbl := newTable(t, path, opts...)
	require.NoError(t, tbl.Open(readOnly))
	return tbl
}

// crash imitates process death: the mapping is dropped without releasing the
// ownership.
func crash(t *testing.T, tbl *Table) {
	require.NoError(t, tbl.Flush())
	require.NoError(t, tbl.unmapAll())
	require.NoError(t, tbl.file.Close())
}

func TestTable_Allocate(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	require.EqualValues(t, 0, tbl.MaxAllocatedID())

	// cross several pages
	n := int32(3*tbl.slotsPerPage + 5)
	for i := int32(1); i <= n; i++ {
		id, err := tbl.AllocateRecord()
		require.NoError(t, err)
		require.Equal(t, i, id)

		rec, err := tbl.ReadRecord(id)
		require.NoError(t, err)
		require.Positive(t, rec.ModCount)
		require.Zero(t, rec.ParentID)
		require.Zero(t, rec.Length)
	}

	require.Equal(t, n, tbl.MaxAllocatedID())

	_, err := tbl.ReadRecord(n + 1)
	require.ErrorIs(t, err, ErrIDOutOfRange)
	_, err = tbl.ReadRecord(NullID)
	require.ErrorIs(t, err, ErrIDOutOfRange)
}

func TestTable_ConcurrentAllocate(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	const workers, perWorker = 8, 100

	var (
		wg  sync.WaitGroup
		mtx sync.Mutex
		ids = make(map[int32]struct{})
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id, err := tbl.AllocateRecord()
				if err != nil {
					t.Error(err)
					return
				}
				mtx.Lock()
				ids[id] = struct{}{}
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, ids, workers*perWorker)
	require.EqualValues(t, workers*perWorker, tbl.MaxAllocatedID())
}

func TestTable_Fields(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	parent, err := tbl.AllocateRecord()
	require.NoError(t, err)
	id, err := tbl.AllocateRecord()
	require.NoError(t, err)

	mod, err := tbl.ModCount(id)
	require.NoError(t, err)

	require.NoError(t, tbl.SetParent(id, parent))
	require.NoError(t, tbl.SetNameID(id, 17))
	require.NoError(t, tbl.SetFlags(id, FlagDirectory|FlagHidden))
	require.NoError(t, tbl.SetAttributeRecordID(id, 5))
	require.NoError(t, tbl.SetContentRecordID(id, 6))
	require.NoError(t, tbl.SetTimestamp(id, 1234567890123))
	require.NoError(t, tbl.SetLength(id, 1<<40))

	rec, err := tbl.ReadRecord(id)
	require.NoError(t, err)
	require.Equal(t, parent, rec.ParentID)
	require.EqualValues(t, 17, rec.NameID)
	require.True(t, rec.Flags.Has(FlagDirectory))
	require.True(t, rec.Flags.Has(FlagHidden))
	require.False(t, rec.Flags.Has(FlagSymlink))
	require.EqualValues(t, 5, rec.AttributeRecordID)
	require.EqualValues(t, 6, rec.ContentRecordID)
	require.EqualValues(t, 1234567890123, rec.Timestamp)
	require.EqualValues(t, 1<<40, rec.Length)
	require.Greater(t, rec.ModCount, mod)
	require.Equal(t, tbl.GlobalModCount(), rec.ModCount)

	require.ErrorIs(t, tbl.SetParent(id, id), ErrSelfParent)
	require.ErrorIs(t, tbl.SetParent(id, 100), ErrIDOutOfRange)
	require.ErrorIs(t, tbl.SetLength(100, 1), ErrIDOutOfRange)
}

func TestTable_UpdateRecord(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	id, err := tbl.UpdateRecord(NullID, func(r *Record) bool {
		r.NameID = 3
		r.Length = 10
		return true
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	mod, err := tbl.ModCount(id)
	require.NoError(t, err)

	// no change reported, no stamp
	_, err = tbl.UpdateRecord(id, func(r *Record) bool {
		r.NameID = 100
		return false
	})
	require.NoError(t, err)

	rec, err := tbl.ReadRecord(id)
	require.NoError(t, err)
	require.EqualValues(t, 3, rec.NameID)
	require.EqualValues(t, 10, rec.Length)
	require.Equal(t, mod, rec.ModCount)

	_, err = tbl.UpdateRecord(id, func(r *Record) bool {
		r.ParentID = id
		return true
	})
	require.ErrorIs(t, err, ErrSelfParent)
}

func TestTable_ModCountMonotonic(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	id, err := tbl.AllocateRecord()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if err := tbl.SetLength(id, int64(i*j)); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}

	var last int32
	for i := 0; i < 1000; i++ {
		mod, err := tbl.ModCount(id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, mod, last)
		last = mod
	}

	wg.Wait()

	mod, err := tbl.ModCount(id)
	require.NoError(t, err)
	require.Equal(t, tbl.GlobalModCount(), mod)
}

func TestTable_ModCountOverflow(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	id, err := tbl.AllocateRecord()
	require.NoError(t, err)

	atomic.StoreInt32(tbl.hdrInt32(hdrGlobalModCountOffset), math.MaxInt32-1)

	require.NoError(t, tbl.SetFlags(id, FlagHidden))

	mod, err := tbl.ModCount(id)
	require.NoError(t, err)
	require.EqualValues(t, math.MaxInt32, mod)
	require.EqualValues(t, math.MaxInt32, tbl.GlobalModCount())

	require.ErrorIs(t, tbl.SetFlags(id, FlagReadOnly), ErrModCountOverflow)
	require.ErrorIs(t, tbl.SetLength(id, 10), ErrModCountOverflow)
	_, err = tbl.UpdateRecord(id, func(r *Record) bool {
		r.NameID = 5
		return true
	})
	require.ErrorIs(t, err, ErrModCountOverflow)
	_, err = tbl.AllocateRecord()
	require.ErrorIs(t, err, ErrModCountOverflow)

	// nothing is written without a stamp
	rec, err := tbl.ReadRecord(id)
	require.NoError(t, err)
	require.Equal(t, FlagHidden, rec.Flags)
	require.Zero(t, rec.Length)
	require.Zero(t, rec.NameID)
	require.EqualValues(t, math.MaxInt32, rec.ModCount)
	require.EqualValues(t, math.MaxInt32, tbl.GlobalModCount())
	require.Equal(t, id, tbl.MaxAllocatedID())
}

func TestTable_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	tbl := openTable(t, path, false)
	created := tbl.CreatedAt()
	require.Positive(t, created)

	for i := 0; i < 10; i++ {
		_, err := tbl.AllocateRecord()
		require.NoError(t, err)
	}
	require.NoError(t, tbl.SetLength(7, 77))
	mod := tbl.GlobalModCount()
	require.NoError(t, tbl.Close())

	// configured page size is overridden by the stored one
	tbl = openTable(t, path, false, WithPageSize(4*os.Getpagesize()))
	defer func() { require.NoError(t, tbl.Close()) }()

	require.Equal(t, os.Getpagesize(), tbl.pageSize)
	require.EqualValues(t, 10, tbl.MaxAllocatedID())
	require.Equal(t, mod, tbl.GlobalModCount())
	require.Equal(t, created, tbl.CreatedAt())
	require.True(t, tbl.WasClosedProperly())

	l, err := tbl.Length(7)
	require.NoError(t, err)
	require.EqualValues(t, 77, l)
}

func TestTable_Corruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	tbl := openTable(t, path, false)
	for i := 0; i < 5; i++ {
		_, err := tbl.AllocateRecord()
		require.NoError(t, err)
	}
	require.NoError(t, tbl.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, 10*RecordSize+3)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl = newTable(t, path)
	require.ErrorIs(t, tbl.Open(false), ErrCorrupted)
}

func TestTable_VersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	tbl := openTable(t, path, false)
	require.NoError(t, tbl.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	buf := make([]byte, 4)
	binary.NativeEndian.PutUint32(buf, uint32(Version+1))
	_, err = f.WriteAt(buf, hdrVersionOffset)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl = newTable(t, path)
	require.ErrorIs(t, tbl.Open(false), ErrIncompatibleVersion)
}

func TestTable_ReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	tbl := newTable(t, path)
	require.Error(t, tbl.Open(true), "missing file")

	tbl = openTable(t, path, false)
	id, err := tbl.AllocateRecord()
	require.NoError(t, err)
	require.NoError(t, tbl.SetNameID(id, 9))
	require.NoError(t, tbl.Close())

	tbl = openTable(t, path, true)
	defer func() { require.NoError(t, tbl.Close()) }()

	nameID, err := tbl.NameID(id)
	require.NoError(t, err)
	require.EqualValues(t, 9, nameID)

	_, err = tbl.AllocateRecord()
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, tbl.SetNameID(id, 1), ErrReadOnly)
	_, err = tbl.TryAcquireExclusiveAccess(1, 1, false)
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestTable_Ownership(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")
	tbl := openTable(t, path, false)

	owner, err := tbl.TryAcquireExclusiveAccess(100, 1000, false)
	require.NoError(t, err)
	require.Equal(t, OwnerInfo{ProcessID: 100, AcquiredAt: 1000}, owner)

	// re-acquisition keeps the timestamp
	owner, err = tbl.TryAcquireExclusiveAccess(100, 2000, false)
	require.NoError(t, err)
	require.Equal(t, OwnerInfo{ProcessID: 100, AcquiredAt: 1000}, owner)

	owner, err = tbl.TryAcquireExclusiveAccess(200, 3000, false)
	require.NoError(t, err)
	require.EqualValues(t, 100, owner.ProcessID)

	ok, err := tbl.TryReleaseExclusiveAccess(200)
	require.NoError(t, err)
	require.False(t, ok)

	owner, err = tbl.TryAcquireExclusiveAccess(200, 3000, true)
	require.NoError(t, err)
	require.Equal(t, OwnerInfo{ProcessID: 200, AcquiredAt: 3000}, owner)

	ok, err = tbl.TryReleaseExclusiveAccess(200)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, tbl.Owner().ProcessID)

	_, err = tbl.TryAcquireExclusiveAccess(0, 0, false)
	require.Error(t, err)

	require.NoError(t, tbl.Close())
}

func TestTable_ConcurrentOwnership(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	const n = 16

	var (
		wg      sync.WaitGroup
		mtx     sync.Mutex
		winners []int32
	)

	for i := int32(1); i <= n; i++ {
		wg.Add(1)
		go func(pid int32) {
			defer wg.Done()

			owner, err := tbl.TryAcquireExclusiveAccess(pid, int64(pid), false)
			if err != nil {
				t.Error(err)
				return
			}
			if owner.ProcessID == pid {
				mtx.Lock()
				winners = append(winners, pid)
				mtx.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Equal(t, winners[0], tbl.Owner().ProcessID)
}

func TestTable_ImproperShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records")

	tbl := openTable(t, path, false)
	_, err := tbl.AllocateRecord()
	require.NoError(t, err)
	_, err = tbl.TryAcquireExclusiveAccess(42, 1000, false)
	require.NoError(t, err)
	crash(t, tbl)

	tbl = openTable(t, path, false)

	r := tbl.OpenReport()
	require.False(t, r.WasClosedProperly)
	require.True(t, r.ExhaustiveCheck)
	require.Equal(t, OwnerInfo{ProcessID: 42, AcquiredAt: 1000}, r.PreviousOwner)
	require.NotEmpty(t, r.Findings)

	owner, err := tbl.TryAcquireExclusiveAccess(43, 2000, false)
	require.NoError(t, err)
	require.EqualValues(t, 42, owner.ProcessID)

	_, err = tbl.TryAcquireExclusiveAccess(43, 2000, true)
	require.NoError(t, err)
	require.NoError(t, tbl.IncrementErrorsAccumulated())
	require.NoError(t, tbl.Close())

	tbl = openTable(t, path, false)
	defer func() { require.NoError(t, tbl.Close()) }()

	r = tbl.OpenReport()
	require.True(t, r.WasClosedProperly)
	require.EqualValues(t, 1, r.ErrorsAccumulated)
	require.True(t, r.ExhaustiveCheck)
}

func TestTable_DumpRecordsAsHex(t *testing.T) {
	tbl := openTable(t, filepath.Join(t.TempDir(), "records"), false)
	defer func() { require.NoError(t, tbl.Close()) }()

	for i := 0; i < 3; i++ {
		_, err := tbl.AllocateRecord()
		require.NoError(t, err)
	}

	var sb strings.Builder
	require.NoError(t, tbl.DumpRecordsAsHex(&sb))
	require.Equal(t, 4, strings.Count(sb.String(), "\n"))
	require.True(t, strings.HasPrefix(sb.String(), "header: "))
}

func TestTable_ReadOnlyWhileOwned(t *testing.T) {
	const deadPID = math.MaxInt32 - 1

	for _, tc := range []struct {
		name    string
		pid     int32
		running bool
	}{
		{name: "running owner", pid: int32(os.Getpid()), running: true},
		{name: "dead owner", pid: deadPID},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "records")

			tbl := openTable(t, path, false)
			for i := 0; i < 5; i++ {
				_, err := tbl.AllocateRecord()
				require.NoError(t, err)
			}
			_, err := tbl.TryAcquireExclusiveAccess(tc.pid, 1000, false)
			require.NoError(t, err)

			// the owner has written the next record but not published
			// the allocated count yet
			s := tbl.slotFor(6)
			atomic.StoreInt32(s.int32At(parentIDOffset), 1)
			crash(t, tbl)

			tbl = newTable(t, path)
			err = tbl.Open(true)
			if !tc.running {
				require.ErrorIs(t, err, ErrCorrupted)
				return
			}

			require.NoError(t, err)
			defer func() { require.NoError(t, tbl.Close()) }()

			r := tbl.OpenReport()
			require.True(t, r.OwnerRunning)
			require.False(t, r.WasClosedProperly)
			require.Len(t, r.Findings, 2)
			require.Contains(t, r.Findings[1], "record #6")
			require.EqualValues(t, 5, tbl.MaxAllocatedID())
		})
	}

	t.Run("writable open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "records")

		tbl := openTable(t, path, false)
		_, err := tbl.TryAcquireExclusiveAccess(int32(os.Getpid()), 1000, false)
		require.NoError(t, err)
		atomic.StoreInt32(tbl.slotFor(3).int32At(nameIDOffset), 7)
		crash(t, tbl)

		tbl = newTable(t, path)
		require.ErrorIs(t, tbl.Open(false), ErrCorrupted)
	})
}
