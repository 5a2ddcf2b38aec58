// Package attributes implements storage of per-file attributes over a
// common.Storage of variable-length records.
//
// Every file having attributes owns a directory record: the file id
// followed by entries. Values shorter than InlineThreshold are stored
// inside the entry, larger ones in a dedicated record starting with the
// negated file id and the attribute id.
package attributes

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
	storagelog "github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/internal/log"
	"go.uber.org/zap"
)

// RecordIDs provides access to the attribute record references of files.
type RecordIDs interface {
	AttributeRecordID(fileID int32) (int32, error)
	SetAttributeRecordID(fileID, recordID int32) error
}

// Storage stores attributes of files.
//
// Storage is safe for concurrent use. Callers are still expected to hold the
// file lock to make sequences of calls atomic.
type Storage struct {
	*cfg

	mtx sync.RWMutex

	blobs   common.Storage
	records RecordIDs
}

// Option is an option of Storage's constructor.
type Option func(*cfg)

type cfg struct {
	log *zap.Logger

	ignoreAlreadyDeleted bool
	maxValueSize         int
}

const defaultMaxValueSize = 10 << 20

func defaultCfg() *cfg {
	return &cfg{
		log:                  zap.NewNop(),
		ignoreAlreadyDeleted: true,
		maxValueSize:         defaultMaxValueSize,
	}
}

// New creates new Storage over opened blob storage.
func New(blobs common.Storage, records RecordIDs, opts ...Option) *Storage {
	c := defaultCfg()

	for i := range opts {
		opts[i](c)
	}

	return &Storage{
		cfg:     c,
		blobs:   blobs,
		records: records,
	}
}

// WithLogger returns option to specify Storage's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *cfg) {
		c.log = l.With(zap.String("component", "AttributeStore"))
	}
}

// WithIgnoreAlreadyDeleted returns option to tolerate deletion of already
// deleted records. Such records are left by an improper shutdown.
func WithIgnoreAlreadyDeleted(v bool) Option {
	return func(c *cfg) {
		c.ignoreAlreadyDeleted = v
	}
}

// WithMaxValueSize returns option to limit the size of attribute values.
func WithMaxValueSize(sz int) Option {
	return func(c *cfg) {
		if sz > 0 {
			c.maxValueSize = sz
		}
	}
}

func checkIDs(fileID, attrID int32) error {
	if fileID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFileID, fileID)
	}
	if attrID < 0 || attrID > MaxAttributeID {
		return fmt.Errorf("%w: %d is not in [0..%d]", ErrInvalidAttributeID, attrID, MaxAttributeID)
	}
	return nil
}

// missingRecord converts absence of a referenced record into corruption.
func missingRecord(err error, kind string, id int32) error {
	if errors.Is(err, common.ErrRecordNotFound) || errors.Is(err, common.ErrAlreadyDeleted) {
		return fmt.Errorf("%w: %s record %d: %w", ErrCorrupted, kind, id, err)
	}
	return fmt.Errorf("read %s record %d: %w", kind, id, err)
}

// lookup finds the entry of the attribute, copying its value if inlined.
// Returns directory record id which is NullID if the file has no
// attributes.
func (s *Storage) lookup(fileID, attrID int32) (int32, entry, []byte, bool, error) {
	dirID, err := s.records.AttributeRecordID(fileID)
	if err != nil {
		return nullID, entry{}, nil, false, err
	}
	if dirID == nullID {
		return nullID, entry{}, nil, false, nil
	}

	var (
		e     entry
		found bool
		value []byte
	)

	err = s.blobs.ReadRecord(dirID, func(rec []byte) error {
		entries, err := parseDirectory(fileID, dirID, rec)
		if err != nil {
			return err
		}

		e, found = findEntry(entries, attrID)
		if found && e.inlined() {
			value = make([]byte, e.sizeOrRef)
			copy(value, rec[e.valueOffset():])
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorrupted) {
			return dirID, e, nil, false, err
		}
		return dirID, e, nil, false, missingRecord(err, "directory", dirID)
	}

	return dirID, e, value, found, nil
}

func (s *Storage) readDedicated(fileID, attrID, recordID int32) ([]byte, error) {
	var value []byte

	err := s.blobs.ReadRecord(recordID, func(rec []byte) error {
		v, err := checkDedicated(fileID, attrID, recordID, rec)
		if err != nil {
			return err
		}

		value = make([]byte, len(v))
		copy(value, v)

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCorrupted) {
			return nil, err
		}
		return nil, missingRecord(err, "dedicated", recordID)
	}

	return value, nil
}

// ReadAttribute returns the value of the file attribute. false is returned
// if there is no such attribute.
func (s *Storage) ReadAttribute(fileID, attrID int32) ([]byte, bool, error) {
	if err := checkIDs(fileID, attrID); err != nil {
		return nil, false, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	_, e, value, found, err := s.lookup(fileID, attrID)
	if err != nil || !found {
		return nil, false, err
	}

	if !e.inlined() {
		value, err = s.readDedicated(fileID, attrID, e.dedicatedID())
		if err != nil {
			return nil, false, err
		}
	}

	return value, true, nil
}

// HasAttribute checks whether the file has the attribute.
func (s *Storage) HasAttribute(fileID, attrID int32) (bool, error) {
	if err := checkIDs(fileID, attrID); err != nil {
		return false, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	_, _, _, found, err := s.lookup(fileID, attrID)

	return found, err
}

// WriteAttribute sets the value of the file attribute replacing the
// previous one.
func (s *Storage) WriteAttribute(fileID, attrID int32, value []byte) error {
	if err := checkIDs(fileID, attrID); err != nil {
		return err
	}
	if len(value) > s.maxValueSize {
		return fmt.Errorf("%w: %d > %d", ErrValueTooLarge, len(value), s.maxValueSize)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	dirID, err := s.records.AttributeRecordID(fileID)
	if err != nil {
		return err
	}

	var (
		dir     []byte
		entries []entry
	)

	if dirID != nullID {
		dir, err = common.ReadBytes(s.blobs, dirID)
		if err != nil {
			return missingRecord(err, "directory", dirID)
		}

		entries, err = parseDirectory(fileID, dirID, dir)
		if err != nil {
			return err
		}
	}

	old, found := findEntry(entries, attrID)

	var (
		ref     int32 = nullID
		created int32 = nullID
		orphan  int32 = nullID
	)

	if len(value) < InlineThreshold {
		if found && !old.inlined() {
			orphan = old.dedicatedID()
		}
	} else {
		target := int32(nullID)
		if found && !old.inlined() {
			target = old.dedicatedID()
		}

		ref, err = s.blobs.WriteToRecord(target, func([]byte) ([]byte, error) {
			return newDedicated(fileID, attrID, value), nil
		})
		if err != nil {
			return fmt.Errorf("write dedicated record of attribute %d of file %d: %w", attrID, fileID, err)
		}

		if target == nullID {
			created = ref
		}

		if ref > math.MaxInt32-InlineThreshold {
			s.dropCreated(created)
			return fmt.Errorf("dedicated record id %d can't be referenced: %w", ref, common.ErrNoSpace)
		}

		if found && ref == target {
			// directory already refers to the record
			storagelog.Write(s.log, storagelog.OpField("write"), storagelog.FileField(fileID),
				storagelog.AttributeField(attrID), storagelog.RecordField(ref))
			return s.records.SetAttributeRecordID(fileID, dirID)
		}
	}

	newEntry := encodeEntry(attrID, value, ref)

	switch {
	case found:
		dir = resizeGap(dir, old.offset, old.size(), len(newEntry))
		copy(dir[old.offset:], newEntry)
	case dirID == nullID:
		dir = newDirectory(fileID, newEntry)
	default:
		dir = append(dir, newEntry...)
	}

	newDirID, err := s.blobs.WriteToRecord(dirID, func([]byte) ([]byte, error) {
		return dir, nil
	})
	if err != nil {
		s.dropCreated(created)
		return fmt.Errorf("write directory record of file %d: %w", fileID, err)
	}

	if err := s.records.SetAttributeRecordID(fileID, newDirID); err != nil {
		return err
	}

	if orphan != nullID {
		if err := s.deleteRecord(orphan); err != nil {
			return fmt.Errorf("delete orphaned dedicated record %d: %w", orphan, err)
		}
	}

	storagelog.Write(s.log, storagelog.OpField("write"), storagelog.FileField(fileID),
		storagelog.AttributeField(attrID), storagelog.RecordField(newDirID))

	return nil
}

// dropCreated removes the dedicated record created by a failed write.
func (s *Storage) dropCreated(id int32) {
	if id == nullID {
		return
	}
	if err := s.blobs.DeleteRecord(id); err != nil {
		s.log.Warn("can't remove dedicated record of failed write",
			zap.Int32("record", id), zap.Error(err))
	}
}

func (s *Storage) deleteRecord(id int32) error {
	err := s.blobs.DeleteRecord(id)
	if err == nil {
		return nil
	}

	if errors.Is(err, common.ErrAlreadyDeleted) && s.ignoreAlreadyDeleted {
		s.log.Warn("record is already deleted, likely improper shutdown", zap.Int32("record", id))
		return nil
	}

	return err
}

// DeleteAttributes removes all attributes of the file.
func (s *Storage) DeleteAttributes(fileID int32) error {
	if fileID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFileID, fileID)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	dirID, err := s.records.AttributeRecordID(fileID)
	if err != nil {
		return err
	}
	if dirID == nullID {
		return nil
	}

	dir, err := common.ReadBytes(s.blobs, dirID)
	switch {
	case err == nil:
		entries, err := parseDirectory(fileID, dirID, dir)
		if err != nil {
			return err
		}

		for i := range entries {
			if entries[i].inlined() {
				continue
			}
			if err := s.deleteRecord(entries[i].dedicatedID()); err != nil {
				return fmt.Errorf("delete dedicated record of attribute %d: %w", entries[i].attrID, err)
			}
		}

		if err := s.deleteRecord(dirID); err != nil {
			return fmt.Errorf("delete directory record %d: %w", dirID, err)
		}
	case errors.Is(err, common.ErrAlreadyDeleted) && s.ignoreAlreadyDeleted:
		s.log.Warn("record is already deleted, likely improper shutdown", zap.Int32("record", dirID))
	default:
		return missingRecord(err, "directory", dirID)
	}

	storagelog.Write(s.log, storagelog.OpField("delete"), storagelog.FileField(fileID),
		storagelog.RecordField(dirID))

	return s.records.SetAttributeRecordID(fileID, nullID)
}

// Attribute is an attribute passed to ForEachAttribute handlers.
type Attribute struct {
	// RecordID is the id of the directory record.
	RecordID int32
	FileID   int32
	AttrID   int32
	Value    []byte
	// Inlined is false if the value is stored in a dedicated record.
	Inlined bool
}

type directory struct {
	recordID int32
	fileID   int32
	rec      []byte
	entries  []entry
}

// ForEachAttribute passes every attribute of every file to f in ascending
// directory record order. f can return common.ErrStop to finish the
// iteration. Attributes are collected first and f is called without the
// storage lock held, so f may read and modify attributes.
func (s *Storage) ForEachAttribute(f func(Attribute) error) error {
	attrs, err := s.collectAttributes()
	if err != nil {
		return err
	}

	for i := range attrs {
		if err := f(attrs[i]); err != nil {
			if errors.Is(err, common.ErrStop) {
				return nil
			}
			return err
		}
	}

	return nil
}

func (s *Storage) collectAttributes() ([]Attribute, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	var dirs []directory

	// dedicated records are read after the iteration since nested reads
	// aren't allowed
	err := s.blobs.ForEach(func(id int32, rec []byte) error {
		if len(rec) < fileIDSize {
			return fmt.Errorf("%w: record %d is %d bytes long", ErrCorrupted, id, len(rec))
		}

		fileID := int32(binary.BigEndian.Uint32(rec))
		if fileID <= 0 {
			return nil
		}

		cp := make([]byte, len(rec))
		copy(cp, rec)

		entries, err := parseDirectory(fileID, id, cp)
		if err != nil {
			return err
		}

		dirs = append(dirs, directory{recordID: id, fileID: fileID, rec: cp, entries: entries})

		return nil
	})
	if err != nil {
		return nil, err
	}

	var res []Attribute

	for _, d := range dirs {
		for _, e := range d.entries {
			a := Attribute{
				RecordID: d.recordID,
				FileID:   d.fileID,
				AttrID:   e.attrID,
				Inlined:  e.inlined(),
			}

			if a.Inlined {
				a.Value = d.rec[e.valueOffset() : e.valueOffset()+int(e.sizeOrRef)]
			} else if a.Value, err = s.readDedicated(d.fileID, e.attrID, e.dedicatedID()); err != nil {
				return nil, err
			}

			res = append(res, a)
		}
	}

	return res, nil
}
