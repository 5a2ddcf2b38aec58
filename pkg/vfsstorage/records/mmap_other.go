//go:build !unix

package records

import (
	"errors"
	"os"
)

var errMmapUnsupported = errors.New("memory-mapped records are not supported on this platform")

func mapPage(*os.File, int64, int, bool) ([]byte, error) { return nil, errMmapUnsupported }

func unmapPage([]byte) error { return errMmapUnsupported }

func syncPage([]byte) error { return errMmapUnsupported }

func osPageSize() int { return 4096 }

// processAlive can't tell, so the owner is assumed to be running.
func processAlive(int32) bool { return true }
