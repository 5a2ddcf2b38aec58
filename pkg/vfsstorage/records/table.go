// Package records implements the table of fixed-size file records stored in
// a memory-mapped file.
//
// The file is split into pages of equal size mapped independently; a page
// holds pageSize/RecordSize slots and its tail is left unused. Slot 0 of the
// first page is the file header. All fields shared between goroutines are
// accessed with atomic operations directly over the mapping, so single-field
// reads need no locks. Multi-field consistency is the caller's concern.
package records

import (
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"
)

// Table is a table of file records.
type Table struct {
	*cfg

	file     *os.File
	readOnly bool

	// growMtx serializes mapping of new pages.
	growMtx sync.Mutex
	pages   atomic.Pointer[[]slot]

	slotsPerPage int32

	report Report

	// acquiredBy is the process id which acquired exclusive access through
	// this instance, released on Close.
	acquiredBy *uatomic.Int32
}

// Option is an option of Table's constructor.
type Option func(*cfg)

type cfg struct {
	path string
	perm fs.FileMode

	pageSize int

	sampleSize int
	exhaustive bool

	log *zap.Logger
}

const (
	defaultPageSize   = 1 << 20
	defaultSampleSize = 1024
)

func defaultCfg() *cfg {
	return &cfg{
		perm:       0o640,
		pageSize:   defaultPageSize,
		sampleSize: defaultSampleSize,
		log:        zap.NewNop(),
	}
}

// New creates new Table instance. The Table must be opened before use.
func New(opts ...Option) *Table {
	c := defaultCfg()

	for i := range opts {
		opts[i](c)
	}

	return &Table{
		cfg:        c,
		acquiredBy: uatomic.NewInt32(0),
	}
}

// WithPath returns option to set the path of the records file.
func WithPath(path string) Option {
	return func(c *cfg) {
		c.path = path
	}
}

// WithPermissions returns option to specify permission bits of the records file.
func WithPermissions(perm fs.FileMode) Option {
	return func(c *cfg) {
		c.perm = perm
	}
}

// WithPageSize returns option to set the size of a mapped page. It must be a
// multiple of the OS page size; for existing files the size stored in the
// header takes precedence.
func WithPageSize(sz int) Option {
	return func(c *cfg) {
		if sz > 0 {
			c.pageSize = sz
		}
	}
}

// WithSampleSize returns option to set how many slots past the allocated
// region are verified to be empty on open.
func WithSampleSize(n int) Option {
	return func(c *cfg) {
		if n > 0 {
			c.sampleSize = n
		}
	}
}

// WithExhaustiveCheck returns option to always check the whole unallocated
// region on open.
func WithExhaustiveCheck(v bool) Option {
	return func(c *cfg) {
		c.exhaustive = v
	}
}

// WithLogger returns option to specify Table's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *cfg) {
		c.log = l.With(zap.String("component", "RecordTable"))
	}
}

func (t *Table) header() slot {
	return (*t.pages.Load())[0][:RecordSize]
}

func (t *Table) hdrInt32(off int) *int32 {
	return t.header().int32At(off)
}

func (t *Table) hdrInt64(off int) *int64 {
	return t.header().int64At(off)
}

// slotFor translates id into its slot. id must be covered by mapped pages.
func (t *Table) slotFor(id int32) slot {
	pages := *t.pages.Load()
	pg := id / t.slotsPerPage
	off := int(id%t.slotsPerPage) * RecordSize
	return pages[pg][off : off+RecordSize]
}

func (t *Table) mappedSlots() int32 {
	return int32(len(*t.pages.Load())) * t.slotsPerPage
}

// MaxAllocatedID returns the largest allocated record identifier.
func (t *Table) MaxAllocatedID() int32 {
	return atomic.LoadInt32(t.hdrInt32(hdrRecordsAllocatedOffset))
}

// GlobalModCount returns the storage-wide modification counter.
func (t *Table) GlobalModCount() int32 {
	return atomic.LoadInt32(t.hdrInt32(hdrGlobalModCountOffset))
}

// CreatedAt returns the file creation timestamp in Unix milliseconds.
func (t *Table) CreatedAt() int64 {
	return atomic.LoadInt64(t.hdrInt64(hdrCreatedAtOffset))
}

// ErrorsAccumulated returns the number of storage errors recorded in the
// header.
func (t *Table) ErrorsAccumulated() int32 {
	return atomic.LoadInt32(t.hdrInt32(hdrErrorsAccumulatedOffset))
}

// IncrementErrorsAccumulated records one more storage error in the header.
// It makes the next open run the exhaustive self-check.
func (t *Table) IncrementErrorsAccumulated() error {
	if t.readOnly {
		return ErrReadOnly
	}
	atomic.AddInt32(t.hdrInt32(hdrErrorsAccumulatedOffset), 1)
	return nil
}

func (t *Table) checkID(id int32) error {
	if maxID := t.MaxAllocatedID(); id <= NullID || id > maxID {
		return fmt.Errorf("%w: %d is not in [1..%d]", ErrIDOutOfRange, id, maxID)
	}
	return nil
}

func (t *Table) checkWritable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}
