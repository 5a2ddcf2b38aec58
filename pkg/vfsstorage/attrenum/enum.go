// Package attrenum persistently maps attribute names to small integer ids.
//
// Ids are allocated sequentially starting from 1 and never change, so they
// can be stored in attribute records instead of names.
package attrenum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nspcc-dev/neofs-vfs/pkg/util"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	namesBucket = []byte("names")
	idsBucket   = []byte("ids")
)

var (
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("attribute name not found")

	// ErrExhausted is returned when no more ids can be allocated.
	ErrExhausted = errors.New("attribute ids exhausted")

	errEmptyName = errors.New("empty attribute name")
)

// Enumerator is a persistent name to id mapping.
type Enumerator struct {
	*cfg

	readOnly bool
	db       *bbolt.DB

	byName *lru.Cache[string, int32]
	byID   *lru.Cache[int32, string]
}

// Option is an option of Enumerator's constructor.
type Option func(*cfg)

type cfg struct {
	path string
	perm fs.FileMode

	cacheSize int
	maxID     int32

	log *zap.Logger
}

const defaultCacheSize = 1024

func defaultCfg() *cfg {
	return &cfg{
		perm:      0o640,
		cacheSize: defaultCacheSize,
		maxID:     math.MaxInt32,
		log:       zap.NewNop(),
	}
}

// New creates new Enumerator.
func New(opts ...Option) *Enumerator {
	c := defaultCfg()

	for i := range opts {
		opts[i](c)
	}

	byName, _ := lru.New[string, int32](c.cacheSize) // no error, size is positive
	byID, _ := lru.New[int32, string](c.cacheSize)

	return &Enumerator{
		cfg:    c,
		byName: byName,
		byID:   byID,
	}
}

// WithPath returns option to set the path of the database file.
func WithPath(path string) Option {
	return func(c *cfg) {
		c.path = path
	}
}

// WithPermissions returns option to specify permission bits of the database
// file.
func WithPermissions(perm fs.FileMode) Option {
	return func(c *cfg) {
		c.perm = perm
	}
}

// WithCacheSize returns option to set the size of both name and id caches.
func WithCacheSize(sz int) Option {
	return func(c *cfg) {
		if sz > 0 {
			c.cacheSize = sz
		}
	}
}

// WithMaxID returns option to limit allocated ids.
func WithMaxID(id int32) Option {
	return func(c *cfg) {
		if id > 0 {
			c.maxID = id
		}
	}
}

// WithLogger returns option to specify Enumerator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *cfg) {
		c.log = l.With(zap.String("component", "AttributeEnumerator"))
	}
}

// Open opens the underlying database.
func (e *Enumerator) Open(readOnly bool) error {
	e.readOnly = readOnly

	if !readOnly {
		err := util.MkdirAllX(filepath.Dir(e.path), e.perm)
		if err != nil {
			return fmt.Errorf("create directory for attribute enumerator %q: %w", e.path, err)
		}
	}

	db, err := bbolt.Open(e.path, e.perm, &bbolt.Options{
		ReadOnly: readOnly,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open attribute enumerator database %q: %w", e.path, err)
	}

	e.db = db

	return nil
}

// Init creates the buckets if needed.
func (e *Enumerator) Init() error {
	if e.readOnly {
		return nil
	}

	return e.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{namesBucket, idsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (e *Enumerator) Close() error {
	e.byName.Purge()
	e.byID.Purge()
	return e.db.Close()
}

func keyForID(id int32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(id))
	return k
}

func (e *Enumerator) remember(name string, id int32) {
	e.byName.Add(name, id)
	e.byID.Add(id, name)
}

// Lookup returns the id of the name without allocating a new one.
func (e *Enumerator) Lookup(name string) (id int32, ok bool, err error) {
	if id, ok := e.byName.Get(name); ok {
		return id, true, nil
	}

	defer common.BboltFatalHandler(&err)

	err = e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(namesBucket)
		if b == nil {
			return nil
		}

		if v := b.Get([]byte(name)); v != nil {
			id, ok = int32(binary.BigEndian.Uint32(v)), true
		}
		return nil
	})
	if err != nil || !ok {
		return 0, false, err
	}

	e.remember(name, id)

	return id, true, nil
}

// ID returns the id of the name allocating a new one if needed.
func (e *Enumerator) ID(name string) (id int32, err error) {
	if name == "" {
		return 0, errEmptyName
	}

	id, ok, err := e.Lookup(name)
	if err != nil || ok {
		return id, err
	}

	if e.readOnly {
		return 0, fmt.Errorf("attribute %q: %w", name, ErrNotFound)
	}

	defer common.BboltFatalHandler(&err)

	err = e.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(namesBucket)

		// allocated concurrently
		if v := names.Get([]byte(name)); v != nil {
			id = int32(binary.BigEndian.Uint32(v))
			return nil
		}

		seq, err := names.NextSequence()
		if err != nil {
			return err
		}
		if seq > uint64(e.maxID) {
			return fmt.Errorf("%w: %d ids allocated", ErrExhausted, e.maxID)
		}

		id = int32(seq)
		key := keyForID(id)

		if err := names.Put([]byte(name), key); err != nil {
			return err
		}

		return tx.Bucket(idsBucket).Put(key, []byte(name))
	})
	if err != nil {
		return 0, fmt.Errorf("allocate id for attribute %q: %w", name, err)
	}

	e.log.Debug("attribute id allocated", zap.String("name", name), zap.Int32("id", id))
	e.remember(name, id)

	return id, nil
}

// Name returns the name with the given id.
func (e *Enumerator) Name(id int32) (name string, err error) {
	if name, ok := e.byID.Get(id); ok {
		return name, nil
	}

	defer common.BboltFatalHandler(&err)

	err = e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(idsBucket)
		if b == nil {
			return ErrNotFound
		}

		v := b.Get(keyForID(id))
		if v == nil {
			return ErrNotFound
		}

		name = string(v)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("attribute id %d: %w", id, err)
	}

	e.remember(name, id)

	return name, nil
}

// ForEach passes all known names to f in ascending id order.
func (e *Enumerator) ForEach(f func(id int32, name string) error) (err error) {
	defer common.BboltFatalHandler(&err)

	return e.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(idsBucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			return f(int32(binary.BigEndian.Uint32(k)), string(v))
		})
	})
}
