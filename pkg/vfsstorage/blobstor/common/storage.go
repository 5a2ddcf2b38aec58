package common

// NullID is an identifier of a non-existent record. Passing it to
// Storage.WriteToRecord allocates a new record.
const NullID int32 = 0

// Reader is a callback receiving a record payload. The payload is valid only
// until the callback returns and MUST NOT be modified or retained.
type Reader func(payload []byte) error

// Writer is a callback receiving the current record payload and returning the
// new one. Writer MAY modify payload in place and return (a sub-slice of) it,
// or return a freshly allocated slice. Returning nil means "nothing changed".
// For a new record payload is empty and nil result stores an empty record.
//
// Writer MUST NOT call back into the Storage.
type Writer func(payload []byte) ([]byte, error)

// Storage represents storage of variable-length records addressed by int32
// identifiers. It is used as a building block for the attribute storage.
type Storage interface {
	Open(readOnly bool) error
	Init() error
	Flush() error
	Close() error

	// ReadRecord passes the payload of the record to the reader. Returns
	// ErrRecordNotFound if the record was never allocated and ErrAlreadyDeleted
	// if it has been deleted.
	ReadRecord(id int32, r Reader) error
	// WriteToRecord updates the record with the payload produced by the
	// writer, allocating a new record if id is NullID. The returned identifier
	// MAY differ from id if the record had to be relocated: callers MUST use
	// it afterwards.
	WriteToRecord(id int32, w Writer) (int32, error)
	// DeleteRecord removes the record. Returns ErrAlreadyDeleted if the record
	// has already been deleted.
	DeleteRecord(id int32) error
	HasRecord(id int32) (bool, error)
	// ForEach iterates over all live records in ascending id order. Handler
	// can return ErrStop to finish the iteration without an error.
	ForEach(func(id int32, payload []byte) error) error
	LiveRecordsCount() int
}

// ReadBytes returns a copy of the record payload.
func ReadBytes(s Storage, id int32) ([]byte, error) {
	var res []byte

	err := s.ReadRecord(id, func(payload []byte) error {
		res = make([]byte, len(payload))
		copy(res, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}
