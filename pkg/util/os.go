package util

import "os"

// MkdirAllX creates the directory tree like os.MkdirAll but always sets +x for
// the user and the group, so storage directories created with file-like
// permissions (0600, 0640) stay traversable.
func MkdirAllX(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm|0110)
}
