package memstore

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, s *Storage, id int32, data []byte) int32 {
	newID, err := s.WriteToRecord(id, func([]byte) ([]byte, error) {
		return data, nil
	})
	require.NoError(t, err)
	return newID
}

func TestStorage(t *testing.T) {
	s := New()
	require.NoError(t, s.Open(false))
	require.NoError(t, s.Init())

	id := put(t, s, common.NullID, []byte("abc"))
	require.Equal(t, int32(1), id)

	data, err := common.ReadBytes(s, id)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), data)

	t.Run("in-place update keeps id", func(t *testing.T) {
		newID := put(t, s, id, []byte("abcdef"))
		require.Equal(t, id, newID)
		require.Zero(t, s.RelocatedCount())
	})

	t.Run("growth relocates", func(t *testing.T) {
		big := bytes.Repeat([]byte{1}, 100)
		newID := put(t, s, id, big)
		require.NotEqual(t, id, newID)
		require.EqualValues(t, 1, s.RelocatedCount())

		_, err := common.ReadBytes(s, id)
		require.ErrorIs(t, err, common.ErrAlreadyDeleted)

		data, err := common.ReadBytes(s, newID)
		require.NoError(t, err)
		require.Equal(t, big, data)
		id = newID
	})

	t.Run("nil writer result is no-op", func(t *testing.T) {
		newID, err := s.WriteToRecord(id, func([]byte) ([]byte, error) { return nil, nil })
		require.NoError(t, err)
		require.Equal(t, id, newID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.DeleteRecord(id))
		require.ErrorIs(t, s.DeleteRecord(id), common.ErrAlreadyDeleted)
		require.ErrorIs(t, s.DeleteRecord(1000), common.ErrRecordNotFound)

		ok, err := s.HasRecord(id)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("read-only", func(t *testing.T) {
		require.NoError(t, s.Open(true))
		_, err := s.WriteToRecord(common.NullID, func([]byte) ([]byte, error) { return nil, nil })
		require.ErrorIs(t, err, common.ErrReadOnly)
		require.NoError(t, s.Open(false))
	})
}

func TestForEach(t *testing.T) {
	s := New()

	for i := 0; i < 5; i++ {
		put(t, s, common.NullID, []byte{byte(i)})
	}

	var seen []int32
	require.NoError(t, s.ForEach(func(id int32, payload []byte) error {
		seen = append(seen, id)
		if id == 3 {
			return common.ErrStop
		}
		return nil
	}))
	require.Equal(t, []int32{1, 2, 3}, seen)
	require.Equal(t, 5, s.LiveRecordsCount())
}

func TestStorage_ForEachWrappedStop(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		put(t, s, common.NullID, []byte{byte(i)})
	}

	var n int
	require.NoError(t, s.ForEach(func(id int32, _ []byte) error {
		n++
		return fmt.Errorf("record %d: %w", id, common.ErrStop)
	}))
	require.Equal(t, 1, n)
}
