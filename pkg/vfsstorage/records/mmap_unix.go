//go:build unix

package records

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func mapPage(f *os.File, off int64, size int, readOnly bool) ([]byte, error) {
	prot := unix.PROT_READ
	if !readOnly {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(f.Fd()), off, size, prot, unix.MAP_SHARED)
}

func unmapPage(p []byte) error {
	return unix.Munmap(p)
}

func syncPage(p []byte) error {
	return unix.Msync(p, unix.MS_SYNC)
}

func osPageSize() int {
	return unix.Getpagesize()
}

// processAlive reports whether a process with the given id exists.
func processAlive(pid int32) bool {
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
