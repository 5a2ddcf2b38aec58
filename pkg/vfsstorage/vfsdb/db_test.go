package vfsdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attributes"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testMetrics struct {
	mtx         sync.Mutex
	methods     map[string]int
	allocated   int32
	corruptions int
}

func (m *testMetrics) AddMethodDuration(method string, _ time.Duration) {
	m.mtx.Lock()
	m.methods[method]++
	m.mtx.Unlock()
}

func (m *testMetrics) SetRecordsAllocated(n int32) {
	m.mtx.Lock()
	m.allocated = n
	m.mtx.Unlock()
}

func (m *testMetrics) IncCorruptionErrors() {
	m.mtx.Lock()
	m.corruptions++
	m.mtx.Unlock()
}

func newDB(t *testing.T, path string, opts ...Option) *DB {
	return New(append([]Option{
		WithPath(path),
		WithLogger(zaptest.NewLogger(t)),
		WithRecordsOptions(records.WithPageSize(os.Getpagesize())),
	}, opts...)...)
}

func openDB(t *testing.T, path string, readOnly bool, opts ...Option) *DB {
	db := newDB(t, path, opts...)
	require.NoError(t, db.Open(readOnly))
	require.NoError(t, db.Init())
	return db
}

func TestDB_Records(t *testing.T) {
	path := t.TempDir()
	m := &testMetrics{methods: make(map[string]int)}

	db := openDB(t, path, false, WithMetrics(m))

	dir, err := db.UpdateRecord(records.NullID, func(r *records.Record) bool {
		r.Flags = records.FlagDirectory
		r.NameID = 1
		return true
	})
	require.NoError(t, err)

	file, err := db.CreateRecord()
	require.NoError(t, err)
	require.EqualValues(t, 2, m.allocated)

	require.NoError(t, db.SetParent(file, dir))
	require.NoError(t, db.SetNameID(file, 2))
	require.NoError(t, db.SetLength(file, 100))
	require.NoError(t, db.SetTimestamp(file, 1700000000000))
	require.NoError(t, db.SetContentRecordID(file, 5))
	require.NoError(t, db.SetFlags(file, records.FlagReadOnly))

	require.ErrorIs(t, db.SetParent(file, file), records.ErrSelfParent)

	mod, err := db.GetModCount(file)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openDB(t, path, true)
	defer func() { require.NoError(t, db.Close()) }()

	rec, err := db.ReadRecord(file)
	require.NoError(t, err)
	require.Equal(t, records.Record{
		ParentID:        dir,
		NameID:          2,
		Flags:           records.FlagReadOnly,
		ContentRecordID: 5,
		ModCount:        mod,
		Timestamp:       1700000000000,
		Length:          100,
	}, rec)

	parent, err := db.GetParent(file)
	require.NoError(t, err)
	require.Equal(t, dir, parent)
	flags, err := db.GetFlags(dir)
	require.NoError(t, err)
	require.True(t, flags.Has(records.FlagDirectory))
	l, err := db.GetLength(file)
	require.NoError(t, err)
	require.EqualValues(t, 100, l)
	ts, err := db.GetTimestamp(file)
	require.NoError(t, err)
	require.EqualValues(t, 1700000000000, ts)
	nameID, err := db.GetNameID(dir)
	require.NoError(t, err)
	require.EqualValues(t, 1, nameID)
	content, err := db.GetContentRecordID(file)
	require.NoError(t, err)
	require.EqualValues(t, 5, content)

	st := db.Status()
	require.EqualValues(t, 2, st.MaxAllocatedID)
	require.Zero(t, st.Owner.ProcessID)

	_, err = db.CreateRecord()
	require.ErrorIs(t, err, records.ErrReadOnly)

	require.Positive(t, m.methods["CreateRecord"])
	require.Positive(t, m.methods["UpdateRecord"])
}

func TestDB_Ownership(t *testing.T) {
	path := t.TempDir()

	db := openDB(t, path, false, WithProcessID(100))
	require.EqualValues(t, 100, db.Status().Owner.ProcessID)
	require.NoError(t, db.Close())

	// imitate a process which died holding the storage
	f, err := os.OpenFile(filepath.Join(path, RecordsFileName), os.O_RDWR, 0)
	require.NoError(t, err)
	pid := make([]byte, 4)
	binary.NativeEndian.PutUint32(pid, 999)
	_, err = f.WriteAt(pid, 12)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db = newDB(t, path, WithProcessID(100))
	require.NoError(t, db.Open(false))

	err = db.Init()
	require.ErrorIs(t, err, ErrOwnedByOtherProcess)

	var oe OwnershipError
	require.True(t, errors.As(err, &oe))
	require.EqualValues(t, 999, oe.Owner.ProcessID)
	require.NoError(t, db.Close())

	db = newDB(t, path, WithProcessID(100), WithForceOwnership(true))
	require.NoError(t, db.Open(false))
	require.NoError(t, db.Init())
	require.False(t, db.OpenReport().WasClosedProperly)
	require.EqualValues(t, 100, db.Status().Owner.ProcessID)
	require.NoError(t, db.Close())

	db = openDB(t, path, false, WithProcessID(100))
	require.True(t, db.OpenReport().WasClosedProperly)
	require.NoError(t, db.Close())
}

func TestDB_Attributes(t *testing.T) {
	path := t.TempDir()

	db := openDB(t, path, false)

	id, err := db.CreateRecord()
	require.NoError(t, err)

	_, ok, err := db.ReadAttribute(id, "unknown")
	require.NoError(t, err)
	require.False(t, ok)

	w := db.WriteAttribute(id, "checksum")
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte{1}, 100))
	require.NoError(t, err)

	ok, err = db.HasAttribute(id, "checksum")
	require.NoError(t, err)
	require.False(t, ok, "value is stored on close")

	modBefore, err := db.GetModCount(id)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.Error(t, w.Close())
	_, err = w.Write([]byte{1})
	require.Error(t, err)

	modAfter, err := db.GetModCount(id)
	require.NoError(t, err)
	require.Greater(t, modAfter, modBefore)

	require.NoError(t, db.WriteAttributeBytes(id, "mime", []byte("text/plain")))

	exp := append([]byte("abc"), bytes.Repeat([]byte{1}, 100)...)

	v, ok, err := db.ReadAttribute(id, "checksum")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, exp, v)

	got := make(map[string][]byte)
	require.NoError(t, db.ForEachAttribute(func(fileID int32, name string, value []byte) error {
		require.Equal(t, id, fileID)
		got[name] = bytes.Clone(value)
		return nil
	}))
	require.Equal(t, map[string][]byte{"checksum": exp, "mime": []byte("text/plain")}, got)

	done := make(chan error, 1)
	go func() {
		done <- db.ForEachAttribute(func(fileID int32, name string, value []byte) error {
			if _, _, err := db.ReadAttribute(fileID, name); err != nil {
				return err
			}
			return db.WriteAttributeBytes(fileID, name+".copy", value)
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("handler writing attributes blocked the iteration")
	}

	v, ok, err = db.ReadAttribute(id, "mime.copy")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("text/plain"), v)
	require.NoError(t, db.DeleteAttributes(id))
	require.NoError(t, db.WriteAttributeBytes(id, "mime", []byte("text/plain")))

	require.NoError(t, db.Close())

	db = openDB(t, path, true)
	v, ok, err = db.ReadAttribute(id, "mime")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("text/plain"), v)
	require.Error(t, db.WriteAttributeBytes(id, "mime", nil))
	require.NoError(t, db.Close())

	db = openDB(t, path, false)
	defer func() { require.NoError(t, db.Close()) }()

	require.NoError(t, db.DeleteAttributes(id))
	ok, err = db.HasAttribute(id, "mime")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, db.Status().AttributeRecords)
}

func TestDB_MarkDeleted(t *testing.T) {
	db := openDB(t, t.TempDir(), false)
	defer func() { require.NoError(t, db.Close()) }()

	parent, err := db.CreateRecord()
	require.NoError(t, err)
	id, err := db.CreateRecord()
	require.NoError(t, err)

	require.NoError(t, db.SetParent(id, parent))
	require.NoError(t, db.SetLength(id, 10))
	require.NoError(t, db.WriteAttributeBytes(id, "a", make([]byte, 1000)))

	require.NoError(t, db.MarkDeleted(id))

	rec, err := db.ReadRecord(id)
	require.NoError(t, err)
	require.Equal(t, records.FlagDeleted, rec.Flags)
	require.Zero(t, rec.ParentID)
	require.Zero(t, rec.Length)
	require.Zero(t, rec.AttributeRecordID)
	require.Zero(t, db.Status().AttributeRecords)

	r, err := db.CheckSanity(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, r.Problems)
}

func TestDB_ReadRecordConsistency(t *testing.T) {
	db := openDB(t, t.TempDir(), false)
	defer func() { require.NoError(t, db.Close()) }()

	id, err := db.CreateRecord()
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); ; i++ {
			select {
			case <-done:
				return
			default:
			}

			_, err := db.UpdateRecord(id, func(r *records.Record) bool {
				r.Length = i
				r.Timestamp = -i
				return true
			})
			if err != nil {
				t.Error(err)
				return
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5000; j++ {
				rec, err := db.ReadRecord(id)
				if err != nil {
					t.Error(err)
					return
				}
				if rec.Length != -rec.Timestamp {
					t.Errorf("torn record: length %d, timestamp %d", rec.Length, rec.Timestamp)
					return
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestDB_Children(t *testing.T) {
	db := openDB(t, t.TempDir(), false)
	defer func() { require.NoError(t, db.Close()) }()

	newDir := func() int32 {
		id, err := db.UpdateRecord(records.NullID, func(r *records.Record) bool {
			r.Flags = records.FlagDirectory
			return true
		})
		require.NoError(t, err)
		return id
	}

	a, b := newDir(), newDir()

	children, err := db.ListChildren(a)
	require.NoError(t, err)
	require.Empty(t, children)

	const n = 50

	ids := make([]int32, n)
	for i := range ids {
		ids[i], err = db.CreateRecord()
		require.NoError(t, err)
		require.NoError(t, db.SetParent(ids[i], a))
	}

	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			err := db.UpdateChildren(a, func(cur []int32) ([]int32, error) {
				return append(cur, id), nil
			})
			if err != nil {
				t.Error(err)
			}
		}(ids[i])
	}
	wg.Wait()

	children, err = db.ListChildren(a)
	require.NoError(t, err)
	require.Equal(t, ids, children)

	// opposite moves must not deadlock
	for i := range ids[:10] {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := db.MoveChild(ids[i], a, b); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	require.NoError(t, db.MoveChild(ids[0], b, a))

	children, err = db.ListChildren(b)
	require.NoError(t, err)
	require.Equal(t, ids[1:10], children)

	children, err = db.ListChildren(a)
	require.NoError(t, err)
	require.Equal(t, append([]int32{ids[0]}, ids[10:]...), children)

	parent, err := db.GetParent(ids[5])
	require.NoError(t, err)
	require.Equal(t, b, parent)

	require.ErrorIs(t, db.MoveChild(b, a, b), records.ErrSelfParent)

	r, err := db.CheckSanity(context.Background(), nil)
	require.NoError(t, err)
	require.EqualValues(t, 2+n, r.RecordsChecked)
	require.Empty(t, r.Problems)

	require.Error(t, db.UpdateChildren(a, func([]int32) ([]int32, error) {
		return []int32{0}, nil
	}))
}

func TestChildrenEncoding(t *testing.T) {
	for _, ids := range [][]int32{
		{},
		{1},
		{1, 2, 3},
		{5, 1000, 1 << 30, 1<<31 - 1},
	} {
		b := encodeChildren(ids)
		res, err := decodeChildren(b)
		require.NoError(t, err)
		require.Equal(t, len(ids), len(res))
		require.True(t, slices.Equal(ids, res))
	}

	for _, b := range [][]byte{
		{2, 1},      // missing entry
		{1, 0},      // zero delta
		{1, 1, 1},   // trailing bytes
		{0x80},      // truncated count
		{100, 1, 2}, // count too large
	} {
		_, err := decodeChildren(b)
		require.ErrorIs(t, err, errChildrenCorrupted, b)
	}
}

func TestDB_CheckSanity(t *testing.T) {
	path := t.TempDir()
	m := &testMetrics{methods: make(map[string]int)}

	db := openDB(t, path, false, WithMetrics(m), WithSanityWorkers(3))

	dir, err := db.UpdateRecord(records.NullID, func(r *records.Record) bool {
		r.Flags = records.FlagDirectory
		return true
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		id, err := db.CreateRecord()
		require.NoError(t, err)
		require.NoError(t, db.WriteAttributeBytes(id, "data", make([]byte, i*10)))
	}

	var progress int
	var mtx sync.Mutex

	r, err := db.CheckSanity(context.Background(), func() {
		mtx.Lock()
		progress++
		mtx.Unlock()
	})
	require.NoError(t, err)
	require.Equal(t, 21, r.RecordsChecked)
	require.Equal(t, 21, progress)
	require.Empty(t, r.Problems)

	// child which doesn't refer to the directory
	require.NoError(t, db.UpdateChildren(dir, func([]int32) ([]int32, error) {
		return []int32{5}, nil
	}))

	r, err = db.CheckSanity(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, r.Problems, 1)
	require.Equal(t, dir, r.Problems[0].FileID)
	require.True(t, IsCorrupted(r.Problems[0].Err))
	require.Equal(t, 1, m.corruptions)
	require.EqualValues(t, 1, db.Status().ErrorsAccumulated)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.CheckSanity(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, db.Close())

	db = openDB(t, path, false)
	defer func() { require.NoError(t, db.Close()) }()
	require.True(t, db.OpenReport().ExhaustiveCheck)
}

func TestDB_CorruptionReported(t *testing.T) {
	db := openDB(t, t.TempDir(), false,
		WithAttributesOptions(attributes.WithIgnoreAlreadyDeleted(false)))
	defer func() { require.NoError(t, db.Close()) }()

	id, err := db.CreateRecord()
	require.NoError(t, err)
	require.NoError(t, db.WriteAttributeBytes(id, "a", []byte("value")))

	// point the file to a missing attribute record
	require.NoError(t, db.records.SetAttributeRecordID(id, 1000))

	_, _, err = db.ReadAttribute(id, "a")
	require.True(t, IsCorrupted(err))
	require.EqualValues(t, 1, db.Status().ErrorsAccumulated)
}
