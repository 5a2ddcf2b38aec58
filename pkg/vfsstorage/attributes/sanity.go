package attributes

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/common"
)

// CheckRecordSanity verifies the directory record of the file and all
// dedicated records it refers to. Violations are reported as errors
// wrapping ErrCorrupted.
func (s *Storage) CheckRecordSanity(fileID, recordID int32) error {
	if fileID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFileID, fileID)
	}
	if recordID == nullID {
		return nil
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	dir, err := common.ReadBytes(s.blobs, recordID)
	if err != nil {
		return missingRecord(err, "directory", recordID)
	}

	entries, err := parseDirectory(fileID, recordID, dir)
	if err != nil {
		return err
	}

	seen := make(map[int32]struct{}, len(entries))

	for _, e := range entries {
		if _, ok := seen[e.attrID]; ok {
			return fmt.Errorf("%w: directory record %d: duplicated attribute %d",
				ErrCorrupted, recordID, e.attrID)
		}
		seen[e.attrID] = struct{}{}

		if want := headerSizeFor(e.attrID, e.sizeOrRef); want != e.headerSize {
			return fmt.Errorf("%w: directory record %d: attribute %d has %d-byte header, expected %d",
				ErrCorrupted, recordID, e.attrID, e.headerSize, want)
		}

		if e.inlined() {
			continue
		}

		if e.dedicatedID() == recordID {
			return fmt.Errorf("%w: directory record %d refers to itself", ErrCorrupted, recordID)
		}

		err := s.blobs.ReadRecord(e.dedicatedID(), func(rec []byte) error {
			_, err := checkDedicated(fileID, e.attrID, e.dedicatedID(), rec)
			return err
		})
		if err != nil {
			if errors.Is(err, ErrCorrupted) {
				return err
			}
			return missingRecord(err, "dedicated", e.dedicatedID())
		}
	}

	return nil
}
