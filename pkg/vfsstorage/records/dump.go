package records

import (
	"encoding/hex"
	"fmt"
	"io"
)

// DumpRecordsAsHex writes the header and every allocated record as
// hex-encoded lines.
func (t *Table) DumpRecordsAsHex(w io.Writer) error {
	maxID := t.MaxAllocatedID()

	_, err := fmt.Fprintf(w, "header: %s\n", hex.EncodeToString(t.header()))
	if err != nil {
		return err
	}

	for id := int32(1); id <= maxID; id++ {
		_, err = fmt.Fprintf(w, "%10d: %s\n", id, hex.EncodeToString(t.slotFor(id)))
		if err != nil {
			return err
		}
	}

	return nil
}
