package vfsdb

import (
	"bytes"
	"fmt"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attributes"
)

// ReadAttribute returns the value of the named attribute of the file. false
// is returned if the file has no such attribute.
func (db *DB) ReadAttribute(fileID int32, name string) ([]byte, bool, error) {
	defer elapsed("ReadAttribute", db.metrics.AddMethodDuration)()

	attrID, ok, err := db.enum.Lookup(name)
	if err != nil || !ok {
		return nil, false, err
	}

	l := db.locks.LockFor(fileID)
	l.RLock()
	defer l.RUnlock()

	v, ok, err := db.attrs.ReadAttribute(fileID, attrID)

	return v, ok, db.reportErr("ReadAttribute", err)
}

// HasAttribute checks whether the file has the named attribute.
func (db *DB) HasAttribute(fileID int32, name string) (bool, error) {
	attrID, ok, err := db.enum.Lookup(name)
	if err != nil || !ok {
		return false, err
	}

	l := db.locks.LockFor(fileID)
	l.RLock()
	defer l.RUnlock()

	ok, err = db.attrs.HasAttribute(fileID, attrID)

	return ok, db.reportErr("HasAttribute", err)
}

// WriteAttributeBytes sets the value of the named attribute of the file.
func (db *DB) WriteAttributeBytes(fileID int32, name string, value []byte) error {
	defer elapsed("WriteAttribute", db.metrics.AddMethodDuration)()

	attrID, err := db.enum.ID(name)
	if err != nil {
		return err
	}

	l := db.locks.LockFor(fileID)
	l.Lock()
	defer l.Unlock()

	return db.reportErr("WriteAttribute", db.attrs.WriteAttribute(fileID, attrID, value))
}

// AttributeWriter buffers the attribute value and stores it on Close.
type AttributeWriter struct {
	db     *DB
	fileID int32
	name   string

	buf    bytes.Buffer
	closed bool
}

// WriteAttribute returns a writer of the named attribute of the file. The
// value is stored only when the writer is closed.
func (db *DB) WriteAttribute(fileID int32, name string) *AttributeWriter {
	return &AttributeWriter{db: db, fileID: fileID, name: name}
}

// Write implements io.Writer.
func (w *AttributeWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errWriterClosed
	}
	return w.buf.Write(p)
}

// Close stores the written value.
func (w *AttributeWriter) Close() error {
	if w.closed {
		return errWriterClosed
	}
	w.closed = true

	return w.db.WriteAttributeBytes(w.fileID, w.name, w.buf.Bytes())
}

// DeleteAttributes removes all attributes of the file.
func (db *DB) DeleteAttributes(fileID int32) error {
	defer elapsed("DeleteAttributes", db.metrics.AddMethodDuration)()

	l := db.locks.LockFor(fileID)
	l.Lock()
	defer l.Unlock()

	return db.reportErr("DeleteAttributes", db.attrs.DeleteAttributes(fileID))
}

// ForEachAttribute passes every attribute of every file to f. Values are
// valid only until f returns. f can return common.ErrStop to finish the
// iteration.
func (db *DB) ForEachAttribute(f func(fileID int32, name string, value []byte) error) error {
	err := db.attrs.ForEachAttribute(func(a attributes.Attribute) error {
		name, err := db.enum.Name(a.AttrID)
		if err != nil {
			return fmt.Errorf("attribute %d of file %d: %w", a.AttrID, a.FileID, err)
		}
		return f(a.FileID, name, a.Value)
	})

	return db.reportErr("ForEachAttribute", err)
}
