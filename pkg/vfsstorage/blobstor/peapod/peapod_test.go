package peapod_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/peapod"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newPeapod(t *testing.T, path string, readOnly bool) *peapod.Peapod {
	ppd := peapod.New(path, 0600)
	ppd.SetLogger(zaptest.NewLogger(t))

	require.NoError(t, ppd.Open(readOnly))
	require.NoError(t, ppd.Init())

	return ppd
}

func put(t *testing.T, ppd *peapod.Peapod, id int32, data []byte) int32 {
	newID, err := ppd.WriteToRecord(id, func([]byte) ([]byte, error) {
		return data, nil
	})
	require.NoError(t, err)
	return newID
}

func TestPeapod_ReadWrite(t *testing.T) {
	ppd := newPeapod(t, filepath.Join(t.TempDir(), "peapod.db"), false)
	t.Cleanup(func() { _ = ppd.Close() })

	id := put(t, ppd, common.NullID, []byte("hello"))
	require.Equal(t, int32(1), id)
	require.Equal(t, 1, ppd.LiveRecordsCount())

	// in-place modification of the passed payload
	newID, err := ppd.WriteToRecord(id, func(payload []byte) ([]byte, error) {
		payload[0] = 'j'
		return append(payload, bytes.Repeat([]byte{'!'}, 100)...), nil
	})
	require.NoError(t, err)
	require.Equal(t, id, newID)

	data, err := common.ReadBytes(ppd, id)
	require.NoError(t, err)
	require.Equal(t, append([]byte("jello"), bytes.Repeat([]byte{'!'}, 100)...), data)

	second := put(t, ppd, common.NullID, nil)
	require.Equal(t, int32(2), second)

	data, err = common.ReadBytes(ppd, second)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestPeapod_Delete(t *testing.T) {
	ppd := newPeapod(t, filepath.Join(t.TempDir(), "peapod.db"), false)
	t.Cleanup(func() { _ = ppd.Close() })

	id := put(t, ppd, common.NullID, []byte{1, 2, 3})

	ok, err := ppd.HasRecord(id)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ppd.DeleteRecord(id))
	require.Zero(t, ppd.LiveRecordsCount())

	require.ErrorIs(t, ppd.DeleteRecord(id), common.ErrAlreadyDeleted)
	require.ErrorIs(t, ppd.ReadRecord(id, func([]byte) error { return nil }), common.ErrAlreadyDeleted)
	require.ErrorIs(t, ppd.DeleteRecord(42), common.ErrRecordNotFound)

	_, err = ppd.WriteToRecord(id, func(p []byte) ([]byte, error) { return p, nil })
	require.ErrorIs(t, err, common.ErrAlreadyDeleted)

	// identifiers are not reused
	require.Equal(t, id+1, put(t, ppd, common.NullID, []byte{4}))
}

func TestPeapod_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peapod.db")

	ppd := newPeapod(t, path, false)
	ids := make([]int32, 10)
	for i := range ids {
		ids[i] = put(t, ppd, common.NullID, []byte{byte(i)})
	}
	require.NoError(t, ppd.DeleteRecord(ids[3]))
	require.NoError(t, ppd.Flush())
	require.NoError(t, ppd.Close())

	ppd = newPeapod(t, path, true)
	t.Cleanup(func() { _ = ppd.Close() })

	require.Equal(t, 9, ppd.LiveRecordsCount())

	_, err := ppd.WriteToRecord(common.NullID, func([]byte) ([]byte, error) { return nil, nil })
	require.ErrorIs(t, err, common.ErrReadOnly)

	var seen []int32
	require.NoError(t, ppd.ForEach(func(id int32, payload []byte) error {
		require.Equal(t, []byte{byte(id - 1)}, payload)
		seen = append(seen, id)
		if len(seen) == 5 {
			return common.ErrStop
		}
		return nil
	}))
	require.Equal(t, []int32{1, 2, 3, 5, 6}, seen)
}
