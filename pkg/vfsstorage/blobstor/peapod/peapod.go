// Package peapod implements common.Storage as a single BoltDB file.
//
// Records live in one bucket keyed by the big-endian record identifier.
// Identifiers come from the bucket sequence, so they are never reused.
// Deleted identifiers are kept in a separate bucket to tell "already deleted"
// apart from "never existed".
package peapod

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"time"

	"github.com/nspcc-dev/neofs-vfs/pkg/util"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	"go.etcd.io/bbolt"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Peapod is a common.Storage over BoltDB.
type Peapod struct {
	path string
	perm fs.FileMode

	log *zap.Logger

	readOnly bool

	bolt *bbolt.DB

	live *atomic.Int64
}

var _ common.Storage = (*Peapod)(nil)

var (
	recordsBucket = []byte("records")
	deletedBucket = []byte("deleted")
)

var errMissingBucket = errors.New("missing root bucket")

// New returns new Peapod instance for the given BoltDB file.
func New(path string, perm fs.FileMode) *Peapod {
	return &Peapod{
		path: path,
		perm: perm,
		log:  zap.NewNop(),
		live: atomic.NewInt64(0),
	}
}

// SetLogger sets logger of the Peapod.
func (x *Peapod) SetLogger(l *zap.Logger) {
	x.log = l.With(zap.String("component", "Peapod"))
}

// Path returns the path to the BoltDB file.
func (x *Peapod) Path() string {
	return x.path
}

// Open implements common.Storage.
func (x *Peapod) Open(readOnly bool) error {
	err := util.MkdirAllX(filepath.Dir(x.path), x.perm)
	if err != nil {
		return fmt.Errorf("create parent directory of %q: %w", x.path, err)
	}

	x.readOnly = readOnly

	x.bolt, err = bbolt.Open(x.path, x.perm, &bbolt.Options{
		ReadOnly: readOnly,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("open BoltDB %q: %w", x.path, err)
	}

	x.log.Debug("opened BoltDB", zap.String("path", x.path), zap.Bool("read-only", readOnly))

	return nil
}

// Init implements common.Storage.
func (x *Peapod) Init() error {
	if !x.readOnly {
		err := x.bolt.Update(func(tx *bbolt.Tx) error {
			for _, name := range [][]byte{recordsBucket, deletedBucket} {
				if _, err := tx.CreateBucketIfNotExists(name); err != nil {
					return fmt.Errorf("create bucket %q: %w", name, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return x.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			// empty read-only storage
			x.live.Store(0)
			return nil
		}

		x.live.Store(int64(b.Stats().KeyN))
		return nil
	})
}

// Flush implements common.Storage.
func (x *Peapod) Flush() error {
	if x.readOnly {
		return nil
	}
	return x.bolt.Sync()
}

// Close implements common.Storage.
func (x *Peapod) Close() error {
	x.log.Debug("closing BoltDB", zap.String("path", x.path))
	return x.bolt.Close()
}

func keyForID(id int32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(id))
	return k
}

func idFromKey(k []byte) int32 {
	return int32(binary.BigEndian.Uint32(k))
}

func missingRecordErr(tx *bbolt.Tx, id int32, key []byte) error {
	if d := tx.Bucket(deletedBucket); d != nil && d.Get(key) != nil {
		return fmt.Errorf("record %d: %w", id, common.ErrAlreadyDeleted)
	}
	return fmt.Errorf("record %d: %w", id, common.ErrRecordNotFound)
}

// ReadRecord implements common.Storage.
func (x *Peapod) ReadRecord(id int32, r common.Reader) (err error) {
	defer common.BboltFatalHandler(&err)

	key := keyForID(id)

	return x.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return fmt.Errorf("record %d: %w", id, common.ErrRecordNotFound)
		}

		val := b.Get(key)
		if val == nil {
			return missingRecordErr(tx, id, key)
		}

		return r(val)
	})
}

// WriteToRecord implements common.Storage. Records never move in BoltDB, so
// the returned identifier equals id for existing records.
func (x *Peapod) WriteToRecord(id int32, w common.Writer) (newID int32, err error) {
	if x.readOnly {
		return common.NullID, common.ErrReadOnly
	}

	defer common.BboltFatalHandler(&err)

	err = x.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return errMissingBucket
		}

		if id == common.NullID {
			seq, err := b.NextSequence()
			if err != nil {
				return fmt.Errorf("next record id: %w", err)
			}
			if seq > math.MaxInt32 {
				return common.ErrNoSpace
			}

			payload, err := w(nil)
			if err != nil {
				return err
			}

			newID = int32(seq)
			if payload == nil {
				payload = []byte{}
			}

			return b.Put(keyForID(newID), payload)
		}

		key := keyForID(id)

		val := b.Get(key)
		if val == nil {
			return missingRecordErr(tx, id, key)
		}

		// BoltDB values point into the read-only mapping
		cur := make([]byte, len(val), len(val)+len(val)/2+16)
		copy(cur, val)

		payload, err := w(cur)
		if err != nil {
			return err
		}

		newID = id
		if payload == nil {
			return nil
		}

		return b.Put(key, payload)
	})
	if err != nil {
		return common.NullID, err
	}

	if id == common.NullID {
		x.live.Inc()
	}

	return newID, nil
}

// DeleteRecord implements common.Storage.
func (x *Peapod) DeleteRecord(id int32) (err error) {
	if x.readOnly {
		return common.ErrReadOnly
	}

	defer common.BboltFatalHandler(&err)

	key := keyForID(id)

	err = x.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return errMissingBucket
		}

		if b.Get(key) == nil {
			return missingRecordErr(tx, id, key)
		}

		if err := b.Delete(key); err != nil {
			return fmt.Errorf("delete record %d: %w", id, err)
		}

		return tx.Bucket(deletedBucket).Put(key, []byte{})
	})
	if err == nil {
		x.live.Dec()
	}

	return err
}

// HasRecord implements common.Storage.
func (x *Peapod) HasRecord(id int32) (ok bool, err error) {
	defer common.BboltFatalHandler(&err)

	err = x.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		ok = b != nil && b.Get(keyForID(id)) != nil
		return nil
	})

	return ok, err
}

// ForEach implements common.Storage.
func (x *Peapod) ForEach(f func(int32, []byte) error) (err error) {
	defer common.BboltFatalHandler(&err)

	err = x.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			return f(idFromKey(k), v)
		})
	})
	if errors.Is(err, common.ErrStop) {
		return nil
	}

	return err
}

// LiveRecordsCount implements common.Storage.
func (x *Peapod) LiveRecordsCount() int {
	return int(x.live.Load())
}
