// Package memstore implements common.Storage in memory.
//
// Every record has a capacity rounded up to capacityQuantum bytes. A write
// that does not fit into the capacity relocates the record to a new
// identifier, the same way disk-backed storages with in-place records do.
package memstore

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	"go.uber.org/atomic"
)

const capacityQuantum = 32

// Storage is an in-memory common.Storage.
type Storage struct {
	mtx sync.RWMutex

	readOnly bool

	lastID  int32
	records map[int32][]byte
	deleted map[int32]struct{}

	relocated *atomic.Uint64
}

var _ common.Storage = (*Storage)(nil)

// New returns new empty Storage.
func New() *Storage {
	return &Storage{
		records:   make(map[int32][]byte),
		deleted:   make(map[int32]struct{}),
		relocated: atomic.NewUint64(0),
	}
}

// Open implements common.Storage.
func (s *Storage) Open(readOnly bool) error {
	s.mtx.Lock()
	s.readOnly = readOnly
	s.mtx.Unlock()
	return nil
}

// Init implements common.Storage.
func (s *Storage) Init() error { return nil }

// Flush implements common.Storage.
func (s *Storage) Flush() error { return nil }

// Close implements common.Storage.
func (s *Storage) Close() error { return nil }

func roundCapacity(n int) int {
	if n < capacityQuantum {
		return capacityQuantum
	}
	return (n + capacityQuantum - 1) / capacityQuantum * capacityQuantum
}

// checkExists must be called under the lock.
func (s *Storage) checkExists(id int32) error {
	if _, ok := s.records[id]; ok {
		return nil
	}
	if _, ok := s.deleted[id]; ok {
		return fmt.Errorf("record %d: %w", id, common.ErrAlreadyDeleted)
	}
	return fmt.Errorf("record %d: %w", id, common.ErrRecordNotFound)
}

// ReadRecord implements common.Storage.
func (s *Storage) ReadRecord(id int32, r common.Reader) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if err := s.checkExists(id); err != nil {
		return err
	}

	return r(s.records[id])
}

// allocate must be called under the write lock.
func (s *Storage) allocate(payload []byte) (int32, error) {
	if s.lastID == math.MaxInt32 {
		return common.NullID, common.ErrNoSpace
	}
	s.lastID++

	buf := make([]byte, len(payload), roundCapacity(len(payload)))
	copy(buf, payload)
	s.records[s.lastID] = buf

	return s.lastID, nil
}

// WriteToRecord implements common.Storage.
func (s *Storage) WriteToRecord(id int32, w common.Writer) (int32, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.readOnly {
		return common.NullID, common.ErrReadOnly
	}

	if id == common.NullID {
		payload, err := w(make([]byte, 0, capacityQuantum))
		if err != nil {
			return common.NullID, err
		}
		return s.allocate(payload)
	}

	if err := s.checkExists(id); err != nil {
		return common.NullID, err
	}

	cur := s.records[id]

	payload, err := w(cur)
	if err != nil {
		return common.NullID, err
	}
	if payload == nil {
		return id, nil
	}

	if len(payload) <= cap(cur) {
		// copy handles overlapping slices, so payload can alias cur
		s.records[id] = cur[:len(payload)]
		copy(s.records[id], payload)
		return id, nil
	}

	newID, err := s.allocate(payload)
	if err != nil {
		return common.NullID, err
	}

	delete(s.records, id)
	s.deleted[id] = struct{}{}
	s.relocated.Inc()

	return newID, nil
}

// DeleteRecord implements common.Storage.
func (s *Storage) DeleteRecord(id int32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.readOnly {
		return common.ErrReadOnly
	}

	if err := s.checkExists(id); err != nil {
		return err
	}

	delete(s.records, id)
	s.deleted[id] = struct{}{}

	return nil
}

// HasRecord implements common.Storage.
func (s *Storage) HasRecord(id int32) (bool, error) {
	s.mtx.RLock()
	_, ok := s.records[id]
	s.mtx.RUnlock()

	return ok, nil
}

// ForEach implements common.Storage.
func (s *Storage) ForEach(f func(int32, []byte) error) error {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	ids := make([]int32, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := f(id, s.records[id]); err != nil {
			if errors.Is(err, common.ErrStop) {
				return nil
			}
			return err
		}
	}

	return nil
}

// LiveRecordsCount implements common.Storage.
func (s *Storage) LiveRecordsCount() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.records)
}

// RelocatedCount returns the number of records moved to a new identifier
// because their payload outgrew the capacity.
func (s *Storage) RelocatedCount() uint64 {
	return s.relocated.Load()
}
