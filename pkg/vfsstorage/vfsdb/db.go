// Package vfsdb ties file records, their attributes and locks into a single
// storage of the virtual file system.
package vfsdb

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attrenum"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attributes"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/peapod"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/filelock"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"go.uber.org/zap"
)

// Default file names inside the storage directory.
const (
	RecordsFileName    = "records.dat"
	AttributesFileName = "attributes.db"
	EnumFileName       = "attributes_enum.db"
)

// DB is a storage of file records and attributes.
type DB struct {
	*cfg

	readOnly bool

	records *records.Table
	blobs   common.Storage
	attrs   *attributes.Storage
	enum    *attrenum.Enumerator
	locks   *filelock.Locker
}

// Option is an option of DB's constructor.
type Option func(*cfg)

type cfg struct {
	path string
	perm fs.FileMode

	log     *zap.Logger
	metrics Metrics

	pid            int32
	forceOwnership bool

	sanityWorkers int

	blobs common.Storage

	recordsOpts []records.Option
	attrOpts    []attributes.Option
	enumOpts    []attrenum.Option
	lockOpts    []filelock.Option
}

const defaultSanityWorkers = 4

func defaultCfg() *cfg {
	return &cfg{
		perm:          0o640,
		log:           zap.NewNop(),
		metrics:       noopMetrics{},
		pid:           int32(os.Getpid()),
		sanityWorkers: defaultSanityWorkers,
	}
}

// New creates new DB instance. The DB must be opened and initialized before
// use.
func New(opts ...Option) *DB {
	c := defaultCfg()

	for i := range opts {
		opts[i](c)
	}

	tbl := records.New(append([]records.Option{
		records.WithPath(filepath.Join(c.path, RecordsFileName)),
		records.WithPermissions(c.perm),
		records.WithLogger(c.log),
	}, c.recordsOpts...)...)

	blobs := c.blobs
	if blobs == nil {
		pp := peapod.New(filepath.Join(c.path, AttributesFileName), c.perm)
		pp.SetLogger(c.log)
		blobs = pp
	}

	return &DB{
		cfg:     c,
		records: tbl,
		blobs:   blobs,
		attrs: attributes.New(blobs, tbl, append([]attributes.Option{
			attributes.WithLogger(c.log),
		}, c.attrOpts...)...),
		enum: attrenum.New(append([]attrenum.Option{
			attrenum.WithPath(filepath.Join(c.path, EnumFileName)),
			attrenum.WithPermissions(c.perm),
			attrenum.WithMaxID(attributes.MaxAttributeID),
			attrenum.WithLogger(c.log),
		}, c.enumOpts...)...),
		locks: filelock.New(c.lockOpts...),
	}
}

// WithPath returns option to set the storage directory.
func WithPath(path string) Option {
	return func(c *cfg) {
		c.path = path
	}
}

// WithPermissions returns option to specify permission bits of storage files.
func WithPermissions(perm fs.FileMode) Option {
	return func(c *cfg) {
		c.perm = perm
	}
}

// WithLogger returns option to specify DB's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *cfg) {
		c.log = l
	}
}

// WithMetrics returns option to specify metrics collector.
func WithMetrics(m Metrics) Option {
	return func(c *cfg) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithProcessID returns option to override the process id used to acquire
// exclusive access to the storage.
func WithProcessID(pid int32) Option {
	return func(c *cfg) {
		c.pid = pid
	}
}

// WithForceOwnership returns option to take the ownership of the storage
// even if another process holds it.
func WithForceOwnership(v bool) Option {
	return func(c *cfg) {
		c.forceOwnership = v
	}
}

// WithSanityWorkers returns option to set the number of goroutines checking
// records in CheckSanity.
func WithSanityWorkers(n int) Option {
	return func(c *cfg) {
		if n > 0 {
			c.sanityWorkers = n
		}
	}
}

// WithBlobStorage returns option to replace the default BoltDB storage of
// attribute records.
func WithBlobStorage(s common.Storage) Option {
	return func(c *cfg) {
		c.blobs = s
	}
}

// WithRecordsOptions returns option to pass options to the records table.
func WithRecordsOptions(opts ...records.Option) Option {
	return func(c *cfg) {
		c.recordsOpts = append(c.recordsOpts, opts...)
	}
}

// WithAttributesOptions returns option to pass options to the attribute
// storage.
func WithAttributesOptions(opts ...attributes.Option) Option {
	return func(c *cfg) {
		c.attrOpts = append(c.attrOpts, opts...)
	}
}

// WithEnumeratorOptions returns option to pass options to the attribute name
// enumerator.
func WithEnumeratorOptions(opts ...attrenum.Option) Option {
	return func(c *cfg) {
		c.enumOpts = append(c.enumOpts, opts...)
	}
}

// WithLockerOptions returns option to pass options to the file locker.
func WithLockerOptions(opts ...filelock.Option) Option {
	return func(c *cfg) {
		c.lockOpts = append(c.lockOpts, opts...)
	}
}
