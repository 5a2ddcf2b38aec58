// Package filelock provides locks guarding file records and their attributes.
//
// Per-file locks are striped: several files may share one RecordLock, which
// is safe since the locks are never held for two files at once. Hierarchy
// locks are keyed by the exact file id because two of them are taken together
// in a fixed order when a child moves between directories.
//
// None of the locks is reentrant.
package filelock

import (
	"sync"

	uatomic "go.uber.org/atomic"
)

const defaultStripes = 1024

// Locker owns the locks of a single storage instance.
type Locker struct {
	mask    int32
	stripes []RecordLock

	hMtx  sync.Mutex
	hLock map[int32]*hierarchyLock
}

// Option is an option of Locker's constructor.
type Option func(*cfg)

type cfg struct {
	stripes int
}

// WithStripes returns option to set the number of per-file lock stripes. The
// value is rounded up to a power of two.
func WithStripes(n int) Option {
	return func(c *cfg) {
		if n > 0 {
			c.stripes = n
		}
	}
}

// New creates new Locker.
func New(opts ...Option) *Locker {
	c := &cfg{stripes: defaultStripes}

	for i := range opts {
		opts[i](c)
	}

	n := 1
	for n < c.stripes {
		n <<= 1
	}

	return &Locker{
		mask:    int32(n - 1),
		stripes: make([]RecordLock, n),
		hLock:   make(map[int32]*hierarchyLock),
	}
}

// LockFor returns the lock guarding the file record and its attributes.
func (l *Locker) LockFor(fileID int32) *RecordLock {
	return &l.stripes[fileID&l.mask]
}

// RecordLock is a read/write lock with a sequence stamp allowing
// optimistic reads. The stamp is odd while a writer holds the lock.
type RecordLock struct {
	mtx sync.RWMutex
	seq uatomic.Uint64
}

func (l *RecordLock) Lock() {
	l.mtx.Lock()
	l.seq.Inc()
}

func (l *RecordLock) Unlock() {
	l.seq.Inc()
	l.mtx.Unlock()
}

func (l *RecordLock) RLock() {
	l.mtx.RLock()
}

func (l *RecordLock) RUnlock() {
	l.mtx.RUnlock()
}

// TryOptimisticRead returns a stamp for a speculative read. false is returned
// if a writer holds the lock right now.
func (l *RecordLock) TryOptimisticRead() (uint64, bool) {
	s := l.seq.Load()
	return s, s&1 == 0
}

// Validate checks that no writer acquired the lock since the stamp was
// taken.
func (l *RecordLock) Validate(stamp uint64) bool {
	return l.seq.Load() == stamp
}

// OptimisticRead calls f speculatively and, if a writer interfered, once
// more under the read lock. f may be called twice and must only read
// atomically accessed data.
func (l *RecordLock) OptimisticRead(f func()) {
	if stamp, ok := l.TryOptimisticRead(); ok {
		f()
		if l.Validate(stamp) {
			return
		}
	}

	l.RLock()
	defer l.RUnlock()

	f()
}

type hierarchyLock struct {
	mtx  sync.Mutex
	refs int
}

func (l *Locker) acquire(id int32) *hierarchyLock {
	l.hMtx.Lock()
	h, ok := l.hLock[id]
	if !ok {
		h = new(hierarchyLock)
		l.hLock[id] = h
	}
	h.refs++
	l.hMtx.Unlock()

	return h
}

func (l *Locker) release(id int32, h *hierarchyLock) {
	l.hMtx.Lock()
	h.refs--
	if h.refs == 0 {
		delete(l.hLock, id)
	}
	l.hMtx.Unlock()
}

// LockForHierarchyUpdate locks the children list of the directory for a
// read-modify-write sequence. The returned function unlocks it. Per-file
// locks of the directory are independent and must still be taken for the
// actual reads and writes.
func (l *Locker) LockForHierarchyUpdate(dirID int32) func() {
	h := l.acquire(dirID)
	h.mtx.Lock()

	return func() {
		h.mtx.Unlock()
		l.release(dirID, h)
	}
}

// LockForHierarchyUpdatePair locks the children lists of two directories,
// the lower id first regardless of argument order. Equal ids are locked
// once.
func (l *Locker) LockForHierarchyUpdatePair(a, b int32) func() {
	if a == b {
		return l.LockForHierarchyUpdate(a)
	}
	if a > b {
		a, b = b, a
	}

	unlockA := l.LockForHierarchyUpdate(a)
	unlockB := l.LockForHierarchyUpdate(b)

	return func() {
		unlockB()
		unlockA()
	}
}
